package cache

import "strconv"

// ReportGenKey counts an owner's completed interviews as seen by the cache.
// A report snapshot is stored under the generation read before it was built,
// so a completion that lands mid-build moves readers to a new key instead of
// racing a delete.
func ReportGenKey(ownerID string) string {
	return "interview:report-gen:" + ownerID
}

// ReportKey holds an owner's cached history and stats for one generation.
func ReportKey(ownerID string, gen int64) string {
	return "interview:report:" + ownerID + ":" + strconv.FormatInt(gen, 10)
}
