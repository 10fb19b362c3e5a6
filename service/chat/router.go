package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"PPGate/logger"
	"PPGate/service/events"
	"PPGate/service/storage"
	"PPGate/tools/errs"
	"PPGate/tools/ids"
)

// Delivery is the outcome of routing one chat payload.
type Delivery struct {
	Message    *storage.Message
	Recipients int
}

// Router persists chat payloads and fans them out to the recipient's live
// connections. The registry is only consulted after the store call returns.
type Router struct {
	reg      *ConnManager
	messages storage.MessageStore
	objects  storage.ObjectStore
	events   events.Publisher
	metrics  *Metrics
}

func NewRouter(reg *ConnManager, messages storage.MessageStore, objects storage.ObjectStore, pub events.Publisher, m *Metrics) *Router {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Router{reg: reg, messages: messages, objects: objects, events: pub, metrics: m}
}

// Route handles one inbound payload from `from`. The returned error is
// always a CodeError (auth, malformed, upload or store); none of them should
// end the connection.
func (r *Router) Route(ctx context.Context, from *WsConn, raw []byte) (*Delivery, error) {
	start := time.Now()
	sender, ok := from.Identity()
	if !ok {
		r.drop("unauthenticated")
		return nil, errs.ErrAuth.WrapMsg("sender has no identity", "conn", from.ID)
	}
	in, err := ParseInbound(raw)
	if err != nil {
		r.drop("malformed")
		return nil, err
	}

	var ref string
	if in.Attachment != nil {
		ref, err = r.upload(ctx, in.Attachment)
		if err != nil {
			return nil, err
		}
	}

	msg, err := r.messages.Create(ctx, sender.UserID, in.RecipientID, in.Text, ref)
	if err != nil {
		r.drop("store")
		return nil, errs.ErrStore.Cause(err, "sender", sender.UserID, "recipient", in.RecipientID)
	}
	if r.metrics != nil {
		r.metrics.routed.Inc()
	}

	frame, err := json.Marshal(OutboundChat{
		SenderID:      msg.Sender,
		RecipientID:   msg.Recipient,
		Text:          msg.Text,
		AttachmentRef: msg.Attachment,
		MessageID:     msg.ID,
	})
	if err != nil {
		return nil, errs.ErrServerInternal.Cause(err)
	}

	d := &Delivery{Message: msg}
	for _, c := range r.reg.ForUser(msg.Recipient) {
		if c == from {
			continue
		}
		if c.Enqueue(frame) {
			d.Recipients++
		} else {
			r.drop("queue")
		}
	}
	if r.metrics != nil {
		r.metrics.delivered.Add(float64(d.Recipients))
		r.metrics.routeTime.Observe(time.Since(start).Seconds())
	}
	if err := r.events.Publish(ctx, events.TopicMessageCreated, msg.Recipient, frame); err != nil {
		logger.Debug("message event not published", zap.String("msg", msg.ID), zap.Error(err))
	}
	return d, nil
}

func (r *Router) upload(ctx context.Context, a *InboundAttachment) (string, error) {
	data, contentType, ext, err := decodeAttachment(a)
	if err != nil {
		r.drop("malformed")
		return "", err
	}
	if r.objects == nil {
		r.drop("upload")
		return "", errs.ErrUpload.WrapMsg("no object store configured")
	}
	key := ids.GenerateString()
	if ext != "" {
		key += ext
	}
	if err := r.objects.Upload(ctx, key, contentType, data); err != nil {
		r.drop("upload")
		return "", errs.ErrUpload.Cause(err, "key", key)
	}
	return key, nil
}

func (r *Router) drop(reason string) {
	if r.metrics != nil {
		r.metrics.dropped.WithLabelValues(reason).Inc()
	}
}

// decodeAttachment accepts raw base64 or a data URL. The content type comes
// from the file extension, then the data URL header, then content sniffing.
func decodeAttachment(a *InboundAttachment) (data []byte, contentType, ext string, err error) {
	payload := a.DataBase64
	var declared string
	if strings.HasPrefix(payload, "data:") {
		i := strings.IndexByte(payload, ',')
		if i < 0 {
			return nil, "", "", errs.ErrMalformedPayload.WrapMsg("bad data url")
		}
		header := payload[len("data:"):i]
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", "", errs.ErrMalformedPayload.WrapMsg("data url is not base64")
		}
		declared = strings.TrimSuffix(header, ";base64")
		if j := strings.IndexByte(declared, ';'); j >= 0 {
			declared = declared[:j]
		}
		payload = payload[i+1:]
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", "", errs.ErrMalformedPayload.Cause(err, "field", "attachment")
	}
	if len(data) == 0 {
		return nil, "", "", errs.ErrMalformedPayload.WrapMsg("empty attachment")
	}

	ext = strings.ToLower(filepath.Ext(filepath.Base(a.Name)))
	if ext == "." || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	switch {
	case ext != "" && mime.TypeByExtension(ext) != "":
		contentType = mime.TypeByExtension(ext)
	case declared != "":
		contentType = declared
	default:
		m := mimetype.Detect(data)
		contentType = m.String()
		if ext == "" {
			ext = m.Extension()
		}
	}
	return data, contentType, ext, nil
}
