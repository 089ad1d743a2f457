package entities

type MarkStatus string

const (
	StatusAbsent MarkStatus = "absent" // not elected
	StatusSigned MarkStatus = "signed"
	StatusMissed MarkStatus = "missed"
)

func NewMarkStatus(elected, signed bool) MarkStatus {
	switch {
	case !elected:
		return StatusAbsent
	case signed:
		return StatusSigned
	default:
		return StatusMissed
	}
}

// Mark is the heartbeat result for a single block.
type Mark struct {
	Signer      string     `json:"signer"`
	BlockNumber uint64     `json:"blockNumber"`
	Epoch       uint64     `json:"epoch"`
	Elected     bool       `json:"elected"`
	Signed      bool       `json:"signed"`
	Status      MarkStatus `json:"status"`
}
