package report

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
)

// SuccessMarker is printed by the engine when a formula holds.
const SuccessMarker = "Formula is satisfied"

// Marker preceding the formula and trace lines of a simulation.
const simulationHeader = "Verifying formula"

// DecodeQuery reports whether a query holds.
func DecodeQuery(stdout string) bool {
	return strings.Contains(stdout, SuccessMarker)
}

type Interval struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type ValueRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type Values struct {
	Range   ValueRange `json:"range"`
	Mean    float64    `json:"mean"`
	Samples []int      `json:"samples"`
}

// Probability is the decoded outcome of a probability estimate. Unsatisfied estimates are reported with every
// field zeroed.
type Probability struct {
	Outcome    bool     `json:"outcome"`
	Interval   Interval `json:"interval"`
	Confidence float64  `json:"confidence"`
	Values     Values   `json:"values"`
}

// DecodeProbability decodes the output of a probability estimate from its two trailing productions:
//
//	interval = "[" min "," max "]" ws "(" confidence "% CI)"
//	values   = "Values in [" lo "," hi "] mean=" mean " steps=" steps ":" { ws sample }
//
// Each is taken from the last line that carries it. Output without the success marker decodes to the zero
// placeholder.
func DecodeProbability(stdout string) (Probability, error) {
	if !strings.Contains(stdout, SuccessMarker) {
		return Probability{Values: Values{Samples: []int{}}}, nil
	}
	lines := splitLines(stdout)
	intervalLine, ok := lastLineContaining(lines, "% CI)")
	if !ok {
		return Probability{}, decodeError("interval", stdout, "no confidence interval line")
	}
	interval, confidence, err := parseInterval(intervalLine)
	if err != nil {
		return Probability{}, err
	}
	valuesLine, ok := lastLineContaining(lines, "Values in [")
	if !ok {
		return Probability{}, decodeError("values", stdout, "no values line")
	}
	values, err := parseValues(valuesLine)
	if err != nil {
		return Probability{}, err
	}
	return Probability{
		Outcome:    true,
		Interval:   interval,
		Confidence: confidence,
		Values:     values,
	}, nil
}

func parseInterval(line string) (Interval, float64, error) {
	end := strings.LastIndex(line, "% CI)")
	open := strings.LastIndex(line[:end], "(")
	if open < 0 {
		return Interval{}, 0, decodeError("interval", line, "missing '('")
	}
	confidence, err := strconv.ParseFloat(line[open+1:end], 64)
	if err != nil {
		return Interval{}, 0, decodeError("interval", line, "invalid confidence level")
	}
	bounds := strings.TrimRight(line[:open], " \t")
	if !strings.HasSuffix(bounds, "]") {
		return Interval{}, 0, decodeError("interval", line, "missing ']'")
	}
	bounds = bounds[:len(bounds)-1]
	start := strings.LastIndex(bounds, "[")
	if start < 0 {
		return Interval{}, 0, decodeError("interval", line, "missing '['")
	}
	min, max, err := parseFloatPair(bounds[start+1:])
	if err != nil {
		return Interval{}, 0, decodeError("interval", line, err.Error())
	}
	return Interval{Min: min, Max: max}, confidence / 100, nil
}

func parseValues(line string) (Values, error) {
	const prefix = "Values in ["
	rest := line[strings.Index(line, prefix)+len(prefix):]
	end := strings.Index(rest, "]")
	if end < 0 {
		return Values{}, decodeError("values", line, "missing ']'")
	}
	lo, hi, err := parseIntPair(rest[:end])
	if err != nil {
		return Values{}, decodeError("values", line, err.Error())
	}
	rest = strings.TrimLeft(rest[end+1:], " \t")

	header, samples, found := strings.Cut(rest, ":")
	if !found {
		return Values{}, decodeError("values", line, "missing ':'")
	}
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.HasPrefix(fields[0], "mean=") || !strings.HasPrefix(fields[1], "steps=") {
		return Values{}, decodeError("values", line, "expected mean= and steps=")
	}
	mean, err := strconv.ParseFloat(strings.TrimPrefix(fields[0], "mean="), 64)
	if err != nil {
		return Values{}, decodeError("values", line, "invalid mean")
	}
	if _, err := strconv.Atoi(strings.TrimPrefix(fields[1], "steps=")); err != nil {
		return Values{}, decodeError("values", line, "invalid steps")
	}

	values := Values{Range: ValueRange{Min: lo, Max: hi}, Mean: mean, Samples: []int{}}
	for _, field := range strings.Fields(samples) {
		sample, err := strconv.Atoi(field)
		if err != nil {
			return Values{}, decodeError("values", line, "invalid sample "+field)
		}
		values.Samples = append(values.Samples, sample)
	}
	return values, nil
}

// Point is one (x, y) sample of a trace. X is truncated to an integer; Y is kept as written.
type Point struct {
	X int
	Y string
}

// Trace is one simulated run of a formula.
type Trace struct {
	Formula string
	Points  []Point
}

// DecodeSimulation decodes the traces of a simulation. After the header line and the verdict line the output
// alternates between a formula line, e.g. "x:", and one run line per simulation, e.g. "[0]: (0,0) (1.5,2)".
func DecodeSimulation(stdout string) ([]Trace, error) {
	_, body, found := strings.Cut(stdout, simulationHeader)
	if !found {
		return nil, decodeError("simulation", stdout, "missing "+simulationHeader)
	}
	lines := splitLines(body)
	// Remainder of the header line and the verdict.
	if len(lines) < 2 {
		return nil, decodeError("simulation", body, "truncated output")
	}

	var traces []Trace
	formula := ""
	runs := 0
	for _, line := range lines[2:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(strings.TrimSpace(line), "[") {
			if formula != "" && runs == 0 {
				return nil, decodeError("simulation", formula, "formula without a trace")
			}
			formula = strings.TrimSuffix(strings.TrimSpace(line), ":")
			runs = 0
			continue
		}
		if formula == "" {
			return nil, decodeError("simulation", line, "trace without a formula")
		}
		points, err := parsePoints(line)
		if err != nil {
			return nil, err
		}
		traces = append(traces, Trace{Formula: formula, Points: points})
		runs++
	}
	if formula != "" && runs == 0 {
		return nil, decodeError("simulation", formula, "formula without a trace")
	}
	return traces, nil
}

// parsePoints decodes every "(x,y)" pair of a run line.
func parsePoints(line string) ([]Point, error) {
	_, rest, found := strings.Cut(line, ":")
	if !found {
		return nil, decodeError("trace", line, "missing ':'")
	}
	points := []Point{}
	for {
		open := strings.Index(rest, "(")
		if open < 0 {
			return points, nil
		}
		end := strings.Index(rest[open:], ")")
		if end < 0 {
			return nil, decodeError("trace", line, "unterminated pair")
		}
		pair := rest[open+1 : open+end]
		rest = rest[open+end+1:]

		xs, ys, found := strings.Cut(pair, ",")
		if !found {
			return nil, decodeError("trace", line, "expected (x,y)")
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		if err != nil {
			return nil, decodeError("trace", line, "invalid x "+xs)
		}
		ys = strings.TrimSpace(ys)
		if _, err := strconv.ParseFloat(ys, 64); err != nil {
			return nil, decodeError("trace", line, "invalid y "+ys)
		}
		points = append(points, Point{X: int(x), Y: ys})
	}
}

func parseFloatPair(s string) (float64, float64, error) {
	a, b, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, errors.New("expected two comma separated bounds")
	}
	first, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, errors.Errorf("invalid bound %q", a)
	}
	second, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, errors.Errorf("invalid bound %q", b)
	}
	return first, second, nil
}

func parseIntPair(s string) (int, int, error) {
	a, b, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, errors.New("expected two comma separated bounds")
	}
	first, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, errors.Errorf("invalid bound %q", a)
	}
	second, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, errors.Errorf("invalid bound %q", b)
	}
	return first, second, nil
}

// splitLines splits engine output on either line terminator.
func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func lastLineContaining(lines []string, substr string) (string, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], substr) {
			return lines[i], true
		}
	}
	return "", false
}

func decodeError(production string, input string, message string) error {
	return errors.WithStack(&campaignerrors.ErrDecode{Production: production, Input: input, Message: message})
}
