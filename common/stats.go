package common

import "fmt"

// DownloadStats accumulates the counters of one reconciliation run. It is not persisted.
type DownloadStats struct {
	TotalProcessed    int `json:"total_processed"`
	AlreadyDownloaded int `json:"already_downloaded"`
	SafeDownloaded    int `json:"safe_downloaded"`
	SCLDownloaded     int `json:"scl_downloaded"`
	Errors            int `json:"errors"`
}

func (s DownloadStats) String() string {
	return fmt.Sprintf("processed=%d already_downloaded=%d safe_downloaded=%d scl_downloaded=%d errors=%d",
		s.TotalProcessed, s.AlreadyDownloaded, s.SafeDownloaded, s.SCLDownloaded, s.Errors)
}
