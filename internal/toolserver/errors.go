package toolserver

import "fmt"

// Code is a tool-level error code. The set is closed: servers must not invent
// codes outside this list.
type Code string

const (
	CodeAthleteNotFound     Code = "ATHLETE_NOT_FOUND"
	CodeUserNotFound        Code = "USER_NOT_FOUND"
	CodeDBError             Code = "DB_ERROR"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeInvalidLimit        Code = "INVALID_LIMIT"
	CodeInvalidDays         Code = "INVALID_DAYS"
	CodeInvalidSessionData  Code = "INVALID_SESSION_DATA"
	CodeInvalidDateFormat   Code = "INVALID_DATE_FORMAT"
	CodeInvalidWorkout      Code = "INVALID_WORKOUT_DESCRIPTION"
	CodeMissingRaceInfo     Code = "MISSING_RACE_INFO"
	CodeInvalidRaceDate     Code = "INVALID_RACE_DATE"
	CodeMissingSeasonInfo   Code = "MISSING_SEASON_INFO"
	CodeInvalidSeasonDates  Code = "INVALID_SEASON_DATES"
	CodeInvalidMessage      Code = "INVALID_MESSAGE"
	CodeFileNotFound        Code = "FILE_NOT_FOUND"
	CodeReadError           Code = "READ_ERROR"
	CodeEncodingError       Code = "ENCODING_ERROR"
	CodeInvalidFilename     Code = "INVALID_FILENAME"
	CodeToolNotFound        Code = "TOOL_NOT_FOUND"
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeInternalError       Code = "INTERNAL_ERROR"
	CodeVersionConflict     Code = "VERSION_CONFLICT"
	CodeDuplicateLink       Code = "DUPLICATE_LINK"
	CodeConversationMissing Code = "CONVERSATION_NOT_FOUND"
)

// ToolError is the error payload a tool returns to the client.
type ToolError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errf builds a ToolError with a formatted message.
func Errf(code Code, format string, args ...any) *ToolError {
	return &ToolError{Code: code, Message: fmt.Sprintf(format, args...)}
}
