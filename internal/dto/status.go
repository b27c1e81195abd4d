package dto

type StatusDTO struct {
	App      AppStatusDTO      `json:"app"`
	Storage  StorageStatusDTO  `json:"storage"`
	Calendar CalendarStatusDTO `json:"calendar"`
}

type AppStatusDTO struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	StartedAt string `json:"started_at"`
	UptimeSec int64  `json:"uptime_sec"`
	SafeMode  bool   `json:"safe_mode"`
}

type StorageStatusDTO struct {
	DBPath         string `json:"db_path"`
	SchemaVersion  int    `json:"schema_version"`
	Reachable      bool   `json:"reachable"`
	SafeModeReason string `json:"safe_mode_reason,omitempty"`
}

type CalendarStatusDTO struct {
	Timezone string `json:"timezone"`
	Today    string `json:"today"`
}
