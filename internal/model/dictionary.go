package model

// CostCode is a categorical bucket budget and spend are tracked against,
// e.g. "03-1000 Concrete".
type CostCode struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	DivisionID string `json:"division_id,omitempty"`
}

// CostType splits a cost code by kind of spend (Labor, Material, ...).
type CostType struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// SubJob is an optional cost-center subdivision of a project.
type SubJob struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Dictionary is the read-only reference data for a rollup.
type Dictionary struct {
	CostCodes map[string]CostCode
	CostTypes map[string]CostType
	SubJobs   map[string]SubJob
}

// NewDictionary indexes reference rows by id.
func NewDictionary(codes []CostCode, types []CostType, subJobs []SubJob) Dictionary {
	d := Dictionary{
		CostCodes: make(map[string]CostCode, len(codes)),
		CostTypes: make(map[string]CostType, len(types)),
		SubJobs:   make(map[string]SubJob, len(subJobs)),
	}
	for _, c := range codes {
		d.CostCodes[c.ID] = c
	}
	for _, t := range types {
		d.CostTypes[t.ID] = t
	}
	for _, s := range subJobs {
		d.SubJobs[s.ID] = s
	}
	return d
}
