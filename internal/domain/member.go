package domain

// Token is the ephemeral identity of one participant inside one room.
// It is issued on first admission and never reused across rooms.
type Token string

// Short returns a prefix that is safe to put in logs.
func (t Token) Short() string {
	if len(t) <= 6 {
		return string(t)
	}
	return string(t[:6]) + "…"
}

// Admission status returned to a joining connection.
type AdmissionStatus string

const (
	StatusAdmitted AdmissionStatus = "admitted"
	StatusRejoined AdmissionStatus = "rejoined"
)

// Admission is the successful outcome of a join.
type Admission struct {
	Token  Token           `json:"token"`
	Status AdmissionStatus `json:"status"`
	Room   RoomMeta        `json:"room"`
}
