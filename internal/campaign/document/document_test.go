package document

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/vericampaign/internal/campaign/space"
	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
)

type fixedDeclarer []string

func (d fixedDeclarer) Declarations(space.Assignment) []string {
	return d
}

const template = "<nta>\n" +
	"  <declaration>int x;\t// keep\n</declaration>\n" +
	"    <system>\n" +
	"system old;\n" +
	"    </system>\n" +
	"  <queries/>\n" +
	"</nta>"

func TestRender(t *testing.T) {
	tmpl, err := Parse([]byte(template))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.Render(&buf, []string{"const int SPEED = 1;", "system p;"}))
	assert.Equal(t, "<nta>\n"+
		"  <declaration>int x;\t// keep\n</declaration>\n"+
		"    <system>\n"+
		"const int SPEED = 1;\n"+
		"system p;\n"+
		"    </system>\n"+
		"  <queries/>\n"+
		"</nta>", buf.String())
}

func TestRender_PreservesCRLF(t *testing.T) {
	tmpl, err := Parse([]byte("a\r\n<system>\r\nold\r\n</system>\r\nb\r\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.Render(&buf, []string{"new"}))
	assert.Equal(t, "a\r\n    <system>\r\nnew\r\n    </system>\r\nb\r\n", buf.String())
}

func TestParse_Malformed(t *testing.T) {
	tests := map[string]string{
		"missing start":       "a\n</system>\n",
		"missing end":         "<system>\nsystem p;\n",
		"no region":           "<nta/>\n",
		"duplicate start":     "<system>\n<system>\n</system>\n",
		"second region":       "<system>\n</system>\n<system>\n</system>\n",
		"markers on one line": "<system>system p;</system>\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			var malformed *campaignerrors.ErrMalformedTemplate
			assert.True(t, errors.As(err, &malformed), "expected ErrMalformedTemplate, got %v", err)
		})
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.xml"))
	var notFound *campaignerrors.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestInstantiate(t *testing.T) {
	dir := t.TempDir()
	templatePath := filepath.Join(dir, "template.xml")
	require.NoError(t, os.WriteFile(templatePath, []byte(template), 0o644))
	tmpl, err := Load(templatePath)
	require.NoError(t, err)

	variant := space.Variant{Name: "s1-os[1,2]"}
	path, err := tmpl.Instantiate(dir, variant, fixedDeclarer{"system p;"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "project_s1-os[1,2].xml"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "    <system>\nsystem p;\n    </system>\n")
	assert.NotContains(t, string(content), "system old;")

	name, ok := VariantFromPath(path)
	assert.True(t, ok)
	assert.Equal(t, variant.Name, name)
}

func TestVariantFromPath(t *testing.T) {
	tests := map[string]struct {
		path     string
		expected string
		ok       bool
	}{
		"document":      {path: "tmp/project_s-1-p0.xml", expected: "s-1-p0", ok: true},
		"property file": {path: "tmp/query_00.txt"},
		"empty name":    {path: "project_.xml"},
		"wrong suffix":  {path: "project_s1.txt"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			variant, ok := VariantFromPath(tc.path)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, variant)
		})
	}
}
