package syncer

// NoticeKind вид некритичного уведомления для пользователя.
type NoticeKind int

const (
	NoticeSavedLocally NoticeKind = iota
	NoticeDeletedLocally
	NoticeServedFromMirror
	NoticeMirrorUnavailable
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeSavedLocally:
		return "saved-locally"
	case NoticeDeletedLocally:
		return "deleted-locally"
	case NoticeServedFromMirror:
		return "served-from-mirror"
	case NoticeMirrorUnavailable:
		return "mirror-unavailable"
	}
	return "unknown"
}

func (k NoticeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

const (
	MsgSavedLocally      = "Saved locally, will sync later"
	MsgDeletedLocally    = "Deleted locally; the server will be updated later"
	MsgServedFromMirror  = "Server unavailable, showing the local copy"
	MsgMirrorUnavailable = "Local storage is unavailable: changes may not survive a reload"
)

// Notice уведомление об откате на локальные данные.
type Notice struct {
	Kind       NoticeKind `json:"kind"`
	EntityKind string     `json:"entity"`
	ID         string     `json:"id,omitempty"`
	Message    string     `json:"message"`
	Err        error      `json:"-"`
}

// Notifier получатель уведомлений. Вызывается синхронно, не должен блокировать.
type Notifier func(Notice)
