// Package rpctypes contains the request and response types of the JSON-RPC API.
package rpctypes

type Torrent struct {
	ID            string
	Name          string
	State         string
	Progress      float64
	DownloadSpeed int64
	UploadSpeed   int64
	DownloadPeak  int64
	Seeds         int
	Peers         int
	QueuePosition int
	TotalSize     int64
	CompletedSize int64
	Ratio         float64
	// ETA in seconds, nil if unknown.
	ETA           *int64
	SavePath      string
	Error         *string
	Category      string
	Tags          []string
	AddedAt       Time `structs:",omitnested"`
	DownloadLimit int64
	UploadLimit   int64
}

type SessionStats struct {
	DownloadSpeed   int64
	UploadSpeed     int64
	DownloadPeak    int64
	UploadPeak      int64
	TotalDownloaded int64
	TotalUploaded   int64
	DHTNodes        int
	Torrents        int
	ScheduleRule    int
	Seq             uint64
}

type File struct {
	Index    int
	Path     string
	Size     int64
	Progress float64
	Priority int
}

type Peer struct {
	Addr          string
	Client        string
	DownloadSpeed int64
	UploadSpeed   int64
	Progress      float64
	Flags         string
}

type Tracker struct {
	URL     string
	Tier    int
	Status  string
	Seeds   int
	Peers   int
	Message string
}

type Detail struct {
	ID              string
	Files           []File
	Peers           []Peer
	Trackers        []Tracker
	PiecesHave      int
	PiecesTotal     int
	PieceLength     int64
	DownloadHistory []int64
	UploadHistory   []int64
}

type Ban struct {
	Time   Time
	IP     string
	Client string
	Reason string
}

type Notification struct {
	ID        string
	TorrentID string
	Time      Time
	Level     string
	Title     string
	Message   string
}

type ListTorrentsRequest struct {
}

type ListTorrentsResponse struct {
	Torrents []Torrent
}

type GetSessionStatsRequest struct {
}

type GetSessionStatsResponse struct {
	Stats SessionStats
}

type GetDetailRequest struct {
	ID string
}

type GetDetailResponse struct {
	Detail Detail
}

type AddTorrentRequest struct {
	// Torrent is the base64 encoded content of a .torrent file.
	Torrent string
	AddTorrentOptions
}

type AddTorrentOptions struct {
	SavePath string
	Category string
	Tags     []string
	Paused   bool
}

type AddTorrentResponse struct {
	ID string
}

type AddURIRequest struct {
	URI string
	AddTorrentOptions
}

type AddURIResponse struct {
	ID string
}

type RemoveTorrentRequest struct {
	ID          string
	DeleteFiles bool
}

type RemoveTorrentResponse struct {
}

type PauseTorrentRequest struct {
	ID string
}

type PauseTorrentResponse struct {
}

type ResumeTorrentRequest struct {
	ID    string
	Force bool
}

type ResumeTorrentResponse struct {
}

type PauseAllRequest struct {
}

type PauseAllResponse struct {
}

type ResumeAllRequest struct {
}

type ResumeAllResponse struct {
}

type SetSpeedLimitRequest struct {
	// ID is empty for session limits.
	ID       string
	Download int64
	Upload   int64
}

type SetSpeedLimitResponse struct {
}

type MoveQueueRequest struct {
	ID string
	// Direction is one of top, up, down, bottom.
	Direction string
}

type MoveQueueResponse struct {
}

type RecheckRequest struct {
	ID string
}

type RecheckResponse struct {
}

type MoveStorageRequest struct {
	ID   string
	Path string
}

type MoveStorageResponse struct {
}

type ReannounceRequest struct {
	ID string
}

type ReannounceResponse struct {
}

type SetFilePriorityRequest struct {
	ID       string
	Index    int
	Priority int
}

type SetFilePriorityResponse struct {
}

type GetBanLogRequest struct {
}

type GetBanLogResponse struct {
	Bans []Ban
}

type GetNotificationsRequest struct {
}

type GetNotificationsResponse struct {
	Notifications []Notification
}
