package notify

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// NotificationArgs is the queued payload for a single outbound message.
type NotificationArgs struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

func (NotificationArgs) Kind() string { return "send_notification" }

// Sender delivers one message. The default implementation logs; a mail
// or push provider slots in behind this interface.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogSender writes notifications to the structured log instead of an
// external channel. Used until a mail provider is configured.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(_ context.Context, recipient, subject, body string) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification sent", "recipient", recipient, "subject", subject, "body", body)
	return nil
}

// NotificationWorker drains the notification queue.
type NotificationWorker struct {
	river.WorkerDefaults[NotificationArgs]
	sender Sender
}

func NewNotificationWorker(sender Sender) *NotificationWorker {
	return &NotificationWorker{sender: sender}
}

func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationArgs]) error {
	args := job.Args
	return w.sender.Send(ctx, args.Recipient, args.Subject, args.Body)
}

// Inserter is the slice of the River client the service needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// InserterFunc adapts a function to Inserter. Lets callers defer wiring
// the real River client until after workers are registered.
type InserterFunc func(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)

func (f InserterFunc) Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	return f(ctx, args, opts)
}

// Service enqueues notifications for async delivery. Callers treat it as
// fire-and-forget; delivery retries are River's job.
type Service struct {
	client Inserter
}

func NewService(client Inserter) *Service {
	return &Service{client: client}
}

// Enqueue queues one message for the recipient.
func (s *Service) Enqueue(ctx context.Context, recipient, subject, body string) error {
	_, err := s.client.Insert(ctx, NotificationArgs{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	}, nil)
	return err
}

// BroadcastLister resolves the recipients of a broadcast.
type BroadcastLister interface {
	ActiveHunterEmails(ctx context.Context) ([]string, error)
}

// BroadcastService fans a message out to every active hunter, one queued
// job per recipient.
type BroadcastService struct {
	*Service
	lister BroadcastLister
}

func NewBroadcastService(client Inserter, lister BroadcastLister) *BroadcastService {
	return &BroadcastService{Service: NewService(client), lister: lister}
}

// Broadcast queues the message for every active hunter.
func (s *BroadcastService) Broadcast(ctx context.Context, subject, body string) error {
	emails, err := s.lister.ActiveHunterEmails(ctx)
	if err != nil {
		return err
	}
	for _, email := range emails {
		if err := s.Enqueue(ctx, email, subject, body); err != nil {
			return err
		}
	}
	return nil
}
