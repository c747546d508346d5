package points

import (
	"context"
	"encoding/json"
	"strings"

	model "github.com/glkeru/loyalty/userpoints/internal/models"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "points.events."

type NatsEvents struct {
	nc *nats.Conn
}

func NewNatsEvents(url string) (*NatsEvents, error) {
	nc, err := nats.Connect(url, nats.Name("points"))
	if err != nil {
		return nil, err
	}
	return &NatsEvents{nc}, nil
}

// points.events.charge / points.events.use
func eventSubject(event model.PointEvent) string {
	return subjectPrefix + strings.ToLower(event.Type.String())
}

func (n *NatsEvents) Publish(ctx context.Context, event model.PointEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(eventSubject(event))
	msg.Header.Set(nats.MsgIdHdr, event.EventID.String())
	msg.Data = data
	return n.nc.PublishMsg(msg)
}

func (n *NatsEvents) Close() error {
	return n.nc.Drain()
}
