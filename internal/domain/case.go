package domain

// CaseRecord is the read-only projection of a case as the source of record
// returns it. Display fields may be empty.
type CaseRecord struct {
	CaseNumber      string
	ParticipantName string
	AccountName     string
	CareAgent       string
}

// LookupResult is the outcome of a case lookup that reached the store.
// Connection failures are reported as *ConnectionError instead.
type LookupResult struct {
	Case  CaseRecord
	found bool
}

func Found(rec CaseRecord) LookupResult {
	return LookupResult{Case: rec, found: true}
}

func NotFound() LookupResult {
	return LookupResult{}
}

func (r LookupResult) Found() bool {
	return r.found
}
