package care

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AttendanceRequestDTO is the body of a student attendance query.
type AttendanceRequestDTO struct {
	RegisterNum string `json:"register_num"`
	Function    string `json:"function"`
}

// FunctionStudentAttendance selects the attendance report.
const FunctionStudentAttendance = "sva"

// AttendanceResponseDTO is the CARE response envelope.
type AttendanceResponseDTO struct {
	Result struct {
		Attendance []SubjectAttendanceDTO `json:"attendance"`
	} `json:"result"`
}

// SubjectAttendanceDTO is one row of the attendance report.
type SubjectAttendanceDTO struct {
	SubCode              string      `json:"sub_code"`
	SubName              string      `json:"sub_name,omitempty"`
	AttendancePercentage json.Number `json:"attendance_percentage"`
}

// UnmarshalJSON accepts the percentage as a number or a quoted string.
func (s *SubjectAttendanceDTO) UnmarshalJSON(data []byte) error {
	var raw struct {
		SubCode              string          `json:"sub_code"`
		SubName              string          `json:"sub_name"`
		AttendancePercentage json.RawMessage `json:"attendance_percentage"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.SubCode = raw.SubCode
	s.SubName = raw.SubName
	s.AttendancePercentage = json.Number(strings.Trim(strings.TrimSpace(string(raw.AttendancePercentage)), `"`))
	return nil
}

// Percent parses the percentage. ok is false for blanks, garbage and
// non-finite values such as "NaN" or "Inf", which JSON stores cannot encode.
func (s SubjectAttendanceDTO) Percent() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s.AttendancePercentage)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
