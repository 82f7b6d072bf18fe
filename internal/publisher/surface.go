package publisher

import (
	"strconv"
	"sync"

	"stringline-viewer/internal/transit"
	"stringline-viewer/internal/view"
)

// Publisher is satisfied by *NATSPublisher.
type Publisher interface {
	Publish(subject string, v any) error
}

// Surface mirrors a chart session onto NATS subjects
// <prefix>.<configuration>.<serviceDate>.<dataset>.
type Surface struct {
	pub    Publisher
	prefix string

	mu sync.Mutex
	id transit.Identity
}

var (
	_ view.Surface = (*Surface)(nil)
	_ view.Mounter  = (*Surface)(nil)
	_ view.Beginner = (*Surface)(nil)
)

func NewSurface(pub Publisher, prefix string, id transit.Identity) *Surface {
	return &Surface{pub: pub, prefix: prefix, id: id}
}

// Subject returns the subject for name under the current identity.
func (s *Surface) Subject(name string) string {
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()
	return Subject(s.prefix, id, name)
}

func Subject(prefix string, id transit.Identity, name string) string {
	return subjectToken(prefix) + "." + strconv.Itoa(id.ConfigurationID) + "." +
		subjectToken(id.ServiceDate.String()) + "." + subjectToken(name)
}

// Begin moves every later subject to id.
func (s *Surface) Begin(id transit.Identity) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// Mount switches to snap's identity and publishes its chart description.
func (s *Surface) Mount(snap view.Snapshot) error {
	s.mu.Lock()
	s.id = snap.Identity
	s.mu.Unlock()
	return s.pub.Publish(s.Subject("chart"), snap.Chart())
}

func (s *Surface) Update(dataset string, rows any) error {
	return s.pub.Publish(s.Subject(dataset), rows)
}

// Fail publishes the failure; publish errors are dropped since there is no
// one left to report them to.
func (s *Surface) Fail(err error) {
	_ = s.pub.Publish(s.Subject("error"), view.FailureOf(err))
}
