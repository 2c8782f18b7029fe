package signal

// Fixed credits per boolean confluence.
const (
	creditHTFTrend     = 10.0
	creditPDBase       = 10.0
	creditADRBase      = 10.0
	creditITFAligned   = 10.0
	creditLTFBOS       = 10.0
	creditHTFOB        = 10.0
	creditITFOB        = 10.0
	creditLTFOB        = 5.0
	creditSweep        = 10.0
	creditFVGResolved  = 5.0
	creditVIAligned    = 5.0
	creditSMT          = 5.0
	creditEntryRefined = 5.0
	creditTrendline    = 5.0
	creditSessionValid = 5.0
)

// confluenceInput carries the boolean confluences and the signed
// contributions gathered along the pipeline.
type confluenceInput struct {
	HTFTrend     bool
	PDBase       bool
	ADRBase      bool
	ITFAligned   bool
	LTFBOS       bool
	HTFOB        bool
	ITFOB        bool
	LTFOB        bool
	Sweep        bool
	FVGResolved  bool
	VIAligned    bool
	SMT          bool
	EntryRefined bool
	Trendline    bool
	SessionValid bool

	PDScore           float64 // [-10, +15]
	ADRScore          float64 // [-15, +10]
	DisplacementScore float64 // [-15, +15]
}

// score sums fixed credits plus signed contributions, clamped to [0, 100].
func (in confluenceInput) score() float64 {
	s := 0.0
	for _, c := range []struct {
		on     bool
		credit float64
	}{
		{in.HTFTrend, creditHTFTrend},
		{in.PDBase, creditPDBase},
		{in.ADRBase, creditADRBase},
		{in.ITFAligned, creditITFAligned},
		{in.LTFBOS, creditLTFBOS},
		{in.HTFOB, creditHTFOB},
		{in.ITFOB, creditITFOB},
		{in.LTFOB, creditLTFOB},
		{in.Sweep, creditSweep},
		{in.FVGResolved, creditFVGResolved},
		{in.VIAligned, creditVIAligned},
		{in.SMT, creditSMT},
		{in.EntryRefined, creditEntryRefined},
		{in.Trendline, creditTrendline},
		{in.SessionValid, creditSessionValid},
	} {
		if c.on {
			s += c.credit
		}
	}
	s += in.PDScore + in.ADRScore + in.DisplacementScore

	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
