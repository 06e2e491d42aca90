package messaging

import "github.com/matst80/slask-archive/pkg/types"

type ChangeTopic string

const (
	VisibilityChanged ChangeTopic = "visibility_changed"
)

type RabbitConfig struct {
	Url    string
	Prefix string
}

// VisibilityChangeBatch is the message body on the visibility topic. Origin
// lets a node skip its own messages.
type VisibilityChangeBatch struct {
	Origin  string                   `json:"origin"`
	Changes []types.VisibilityChange `json:"changes"`
}
