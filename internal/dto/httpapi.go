package dto

// ========== 请求体 ==========

type RegisterPlayRequest struct {
	ActionID int64   `json:"action_id"`
	Quantity *int64  `json:"quantity,omitempty"`
	Note     *string `json:"note,omitempty"`
}

type BackfillRequest struct {
	Days int `json:"days"`
}

// ========== 响应体 ==========

type ErrorDTO struct {
	Kind   string `json:"kind"`
	Detail any    `json:"detail,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDTO `json:"error"`
}

// DayOutcomeDTO 补结算单日结果；失败时 Error 非空
type DayOutcomeDTO struct {
	DayKey           string    `json:"day_key"`
	Status           string    `json:"status,omitempty"`
	AlreadyConfirmed bool      `json:"already_confirmed"`
	Error            *ErrorDTO `json:"error,omitempty"`
}

type BackfillResponse struct {
	Days []DayOutcomeDTO `json:"days"`
}
