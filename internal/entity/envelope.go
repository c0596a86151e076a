package entity

import "fmt"

// Outcome итог одной попытки записи.
type Outcome int

const (
	RemoteCommitted Outcome = iota
	LocalFallback
	Failed
)

func (o Outcome) String() string {
	switch o {
	case RemoteCommitted:
		return "remote-committed"
	case LocalFallback:
		return "local-fallback"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	for _, v := range []Outcome{RemoteCommitted, LocalFallback, Failed} {
		if v.String() == string(b) {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// Envelope результат одной операции записи. Каждая попытка даёт ровно один конверт.
// Err заполнен для Failed и для LocalFallback (причина отказа удалённого сервиса).
type Envelope struct {
	Outcome Outcome
	Entity  Entity
	Err     error
}

func Committed(e Entity) Envelope { return Envelope{Outcome: RemoteCommitted, Entity: e} }

func Fallback(e Entity, cause error) Envelope {
	return Envelope{Outcome: LocalFallback, Entity: e, Err: cause}
}

func Fail(err error) Envelope { return Envelope{Outcome: Failed, Err: err} }

// OK true, если мутация применена (удалённо или локально).
func (e Envelope) OK() bool { return e.Outcome != Failed }
