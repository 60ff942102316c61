package driver

import "botkit/internal/domain"

// NullDriver stands in when no registered driver claims a request. Every
// operation is inert; sending through it is a capability fault.
type NullDriver struct{}

func NewNullDriver() *NullDriver { return &NullDriver{} }

func (d *NullDriver) Name() string                             { return "null" }
func (d *NullDriver) MatchesRequest() bool                     { return false }
func (d *NullDriver) Event() (*domain.DriverEvent, bool)       { return nil, false }
func (d *NullDriver) Messages() []*domain.IncomingMessage      { return nil }
func (d *NullDriver) IsBot() bool                              { return false }
func (d *NullDriver) IsConfigured() bool                       { return false }
func (d *NullDriver) SerializesCallbacks() bool                { return true }
func (d *NullDriver) Types(*domain.IncomingMessage) error      { return nil }

func (d *NullDriver) User(msg *domain.IncomingMessage) (*domain.User, error) {
	return &domain.User{ID: msg.Sender}, nil
}

func (d *NullDriver) ConversationAnswer(msg *domain.IncomingMessage) *domain.Answer {
	return domain.NewAnswer(msg)
}

func (d *NullDriver) BuildServicePayload(out *domain.OutgoingMessage, matching *domain.IncomingMessage, extras map[string]any) (domain.Payload, error) {
	return nil, domain.ErrDriverCapability
}

func (d *NullDriver) SendPayload(domain.Payload) error {
	return domain.ErrDriverCapability
}
