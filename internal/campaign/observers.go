package campaign

import (
	"io"

	"gopkg.in/cheggaaa/pb.v1"

	"github.com/G-Research/vericampaign/internal/campaign/pool"
	"github.com/G-Research/vericampaign/internal/campaign/property"
	"github.com/G-Research/vericampaign/internal/campaign/report"
	"github.com/G-Research/vericampaign/internal/common/metrics"
)

// Progress bar captions per kind.
var phaseDescriptions = map[property.Kind]string{
	property.Query:       "Verifying queries",
	property.Probability: "Calculating probabilities",
	property.Simulation:  "Simulating",
}

type metricsObserver struct {
	metrics *metrics.CampaignMetrics
}

func (o *metricsObserver) JobCompleted(r pool.Result) {
	o.metrics.RecordJob(r.Kind.String(), r.Elapsed.Seconds(), report.DecodeQuery(r.Stdout))
}

// progressObserver renders a terminal progress bar for one phase.
type progressObserver struct {
	bar *pb.ProgressBar
}

func newProgressObserver(out io.Writer, kind property.Kind, total int) *progressObserver {
	bar := pb.New(total).Prefix(phaseDescriptions[kind])
	bar.Output = out
	bar.ShowSpeed = false
	bar.Start()
	return &progressObserver{bar: bar}
}

func (o *progressObserver) JobCompleted(pool.Result) {
	o.bar.Increment()
}

func (o *progressObserver) Finish() {
	o.bar.Finish()
}
