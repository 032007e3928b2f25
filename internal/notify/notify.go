// Package notify delivers account notifications (login, sign-up, logout).
// Delivery is simulated: messages are logged, optionally after a trip
// through a RabbitMQ queue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/model"
)

// Kind is the account event a message reports.
type Kind string

const (
	KindLogin  Kind = "login"
	KindSignup Kind = "signup"
	KindLogout Kind = "logout"
)

// Message is one e-mail-style notification.
type Message struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier sends a message. Callers treat delivery as best effort.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

const signature = "\n\nمع تحيات فريق منصة الطلبة اليمنيين"

// Compose renders the message for kind addressed to u.
func Compose(kind Kind, u model.User, now time.Time) Message {
	m := Message{Kind: kind, To: u.Email, CreatedAt: now.UTC()}
	if id, err := uuid.NewV4(); err == nil {
		m.ID = id.String()
	}
	greet := fmt.Sprintf("مرحباً %s,\n\n", u.FullNameAr)
	switch kind {
	case KindLogin:
		m.Subject = "تسجيل دخول جديد - منصة الطلبة اليمنيين"
		m.Body = greet + "تم تسجيل دخول جديد إلى حسابك في منصة الطلبة اليمنيين.\n" +
			"إذا لم تكن أنت من قام بهذا الإجراء، يرجى الاتصال بالدعم الفني فوراً." + signature
	case KindSignup:
		m.Subject = "مرحباً بك في منصة الطلبة اليمنيين"
		m.Body = greet + "شكراً لإنشاء حساب في منصة الطلبة اليمنيين. نحن سعداء بانضمامك إلينا." + signature
	case KindLogout:
		m.Subject = "تسجيل خروج - منصة الطلبة اليمنيين"
		m.Body = greet + "تم تسجيل الخروج من حسابك في منصة الطلبة اليمنيين." + signature
	}
	return m
}

// LogNotifier writes the simulated e-mail to the log.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier returns a notifier logging through log.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, m Message) error {
	if m.To == "" {
		return errors.New("notify: empty recipient")
	}
	n.log.Info("email notification",
		zap.String("id", m.ID),
		zap.String("kind", string(m.Kind)),
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("body", m.Body),
	)
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (mn Multi) Notify(ctx context.Context, m Message) error {
	var all []error
	for _, n := range mn {
		if err := n.Notify(ctx, m); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}
