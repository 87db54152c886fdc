package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"strings"
	"text/template"
	"time"
	"unicode"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sharon232323/bidmate/internal/config"
	"github.com/sharon232323/bidmate/internal/email"
	"github.com/sharon232323/bidmate/internal/models"
	"github.com/sharon232323/bidmate/internal/notify"
	"github.com/sharon232323/bidmate/internal/services"
	"github.com/sharon232323/bidmate/internal/utils"
)

// Task types.
const (
	TypeOfferPlaced     = "offer:placed"
	TypeOfferDecision   = "offer:decision"
	TypeOfferSuperseded = "offer:superseded"
	TypeContactReceived = "contact:received"
)

const notificationQueue = "default"

// fanOutRetention keeps finished fan-out tasks around so that a retried
// decision task cannot enqueue the same recipient twice.
const fanOutRetention = 24 * time.Hour

// --- Task Client (Enqueuing tasks) ---

// RedisOpt returns the asynq connection options of an existing client.
func RedisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(RedisOpt(rdb))
}

// Enqueuer is the part of *asynq.Client the Notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func notificationOpts(taskID string, extra ...asynq.Option) []asynq.Option {
	opts := append([]asynq.Option{asynq.Queue(notificationQueue), asynq.MaxRetry(5), asynq.Timeout(time.Minute)}, extra...)
	if taskID != "" {
		opts = append(opts, asynq.TaskID(taskID))
	}
	return opts
}

// enqueueOnce enqueues task and treats an already queued task id as success.
func enqueueOnce(ctx context.Context, client Enqueuer, task *asynq.Task, opts []asynq.Option) error {
	if _, err := client.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	return nil
}

// Notifier is a notify.Notifier that turns events into email tasks.
type Notifier struct {
	client Enqueuer
}

// NewNotifier creates a Notifier enqueuing through client.
func NewNotifier(client Enqueuer) *Notifier {
	return &Notifier{client: client}
}

// TaskFor builds the task carrying ev.
func TaskFor(ev notify.Event) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}
	typ := TypeOfferDecision
	if ev.Type == notify.EventOfferPlaced {
		typ = TypeOfferPlaced
	}
	return asynq.NewTask(typ, payload), nil
}

func (n *Notifier) Notify(ctx context.Context, ev notify.Event) error {
	task, err := TaskFor(ev)
	if err != nil {
		return err
	}
	if err := enqueueOnce(ctx, n.client, task, notificationOpts(ev.EventID)); err != nil {
		return fmt.Errorf("failed to enqueue %s task for item %s: %w", task.Type(), ev.ItemID, err)
	}
	return nil
}

type contactPayload struct {
	ContactID utils.SixID `json:"contact_id"`
}

// ContactReceived queues the admin email for a new contact request.
func (n *Notifier) ContactReceived(ctx context.Context, c *models.Contact) error {
	payload, err := json.Marshal(contactPayload{ContactID: c.ID})
	if err != nil {
		return fmt.Errorf("failed to marshal contact %s: %w", c.ID, err)
	}
	task := asynq.NewTask(TypeContactReceived, payload)
	if err := enqueueOnce(ctx, n.client, task, notificationOpts("contact:"+c.ID.String())); err != nil {
		return fmt.Errorf("failed to enqueue %s task for contact %s: %w", task.Type(), c.ID, err)
	}
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg            *config.Config
	emailSender    email.Sender
	client         Enqueuer
	itemService    services.IItemService
	offerService   services.IOfferService
	contactService services.IContactService
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	client Enqueuer,
	itemService services.IItemService,
	offerService services.IOfferService,
	contactService services.IContactService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:            cfg,
		emailSender:    emailSender,
		client:         client,
		itemService:    itemService,
		offerService:   offerService,
		contactService: contactService,
	}
}

// NewServer configures an asynq server and the mux with every handler
// registered. The caller runs it.
func NewServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		RedisOpt(rdb),
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				notificationQueue: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeOfferPlaced, processor.HandleOfferPlacedTask)
	mux.HandleFunc(TypeOfferDecision, processor.HandleOfferDecisionTask)
	mux.HandleFunc(TypeOfferSuperseded, processor.HandleOfferSupersededTask)
	mux.HandleFunc(TypeContactReceived, processor.HandleContactReceivedTask)
	return srv, mux
}

// --- Task Handlers ---

var (
	subjectTemplate = template.Must(template.New("subject").Parse(
		`{{if eq .Kind "placed"}}New {{.OfferNoun}} on {{.Title}}{{else}}Your {{.OfferNoun}} on {{.Title}} was {{.Kind}}{{end}}`))

	bodyTemplate = template.Must(template.New("body").Parse(`Hello {{.To}},
{{if eq .Kind "placed"}}
{{.Bidder}} made a new {{.OfferNoun}} on your listing "{{.Title}}".
{{- if .Amount}} The current bid is now {{.Amount}}.{{end}}
{{- else if eq .Kind "accepted"}}
Good news: your {{.OfferNoun}} on "{{.Title}}" was accepted by {{.Owner}}.
{{- if .Amount}} Amount: {{.Amount}}.{{end}}
Please get in touch with the seller to arrange the handover.
{{- else}}
Your {{.OfferNoun}} on "{{.Title}}" was declined.
{{- if .Superseded}} The owner accepted another offer.{{end}}
{{- end}}

{{.AppName}}
`))

	contactTemplate = template.Must(template.New("contact").Parse(`A new contact request was submitted on {{.AppName}}.

Name: {{.Name}}
{{- if .Email}}
Email: {{.Email}}{{end}}
{{- if .Year}}
Year: {{.Year}}{{end}}
{{- if .Department}}
Department: {{.Department}}{{end}}
Received: {{.CreatedAt.Format "2006-01-02 15:04 MST"}}

{{.Reason}}
`))
)

// message is the data rendered into an offer notification.
type message struct {
	To         string
	Kind       string // placed, accepted, declined
	OfferNoun  string // bid or offer
	Title      string
	Owner      string
	Bidder     string
	Amount     string
	Superseded bool
	AppName    string
}

// envelope is one rendered email.
type envelope struct {
	To      string
	ReplyTo string
	Subject string
	Body    string
}

func offerNoun(kind models.OfferKind) string {
	if kind == models.OfferKindBarter {
		return "offer"
	}
	return "bid"
}

func decode[T any](t *asynq.Task) (T, error) {
	var v T
	if err := json.Unmarshal(t.Payload(), &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return v, nil
}

// loadItem resolves the event's item. A deleted item ends the task.
func (p *TaskProcessor) loadItem(ctx context.Context, id utils.SixID) (*models.Item, error) {
	item, err := p.itemService.FindItemByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("item %s no longer exists: %w", id, asynq.SkipRetry)
		}
		return nil, err
	}
	return item, nil
}

func (p *TaskProcessor) decisionMessage(ev notify.Event, item *models.Item) message {
	m := message{
		To:        ev.Bidder,
		Kind:      "declined",
		OfferNoun: offerNoun(ev.Kind),
		Title:     item.Title,
		Owner:     item.Owner,
		Bidder:    ev.Bidder,
	}
	if ev.Type == notify.EventOfferAccepted {
		m.Kind = "accepted"
	}
	if ev.Amount != nil {
		m.Amount = ev.Amount.StringFixed(2)
	}
	return m
}

// HandleOfferPlacedTask tells the owner about a new offer on their item.
func (p *TaskProcessor) HandleOfferPlacedTask(ctx context.Context, t *asynq.Task) error {
	ev, err := decode[notify.Event](t)
	if err != nil {
		return err
	}
	item, err := p.loadItem(ctx, ev.ItemID)
	if err != nil {
		return err
	}

	m := message{
		To:        item.Owner,
		Kind:      "placed",
		OfferNoun: offerNoun(ev.Kind),
		Title:     item.Title,
		Owner:     item.Owner,
		Bidder:    ev.Bidder,
	}
	if ev.Amount != nil {
		m.Amount = ev.Amount.StringFixed(2)
	}
	return p.sendOfferMessage(ctx, m)
}

// supersededPayload addresses one bidder whose offers lost to ev.
type supersededPayload struct {
	Event  notify.Event `json:"event"`
	Bidder string       `json:"bidder"`
}

// HandleOfferDecisionTask tells the bidder about the decision. For an
// acceptance it first queues one offer:superseded task per other bidder, so
// a failed delivery to one of them never repeats this bidder's email.
func (p *TaskProcessor) HandleOfferDecisionTask(ctx context.Context, t *asynq.Task) error {
	ev, err := decode[notify.Event](t)
	if err != nil {
		return err
	}
	item, err := p.loadItem(ctx, ev.ItemID)
	if err != nil {
		return err
	}
	if err := p.fanOutSuperseded(ctx, ev, item.ID); err != nil {
		return err
	}
	return p.sendOfferMessage(ctx, p.decisionMessage(ev, item))
}

func (p *TaskProcessor) fanOutSuperseded(ctx context.Context, ev notify.Event, itemID utils.SixID) error {
	if len(ev.Superseded) == 0 {
		return nil
	}
	superseded := make(map[utils.SixID]bool, len(ev.Superseded))
	for _, id := range ev.Superseded {
		superseded[id] = true
	}
	queued := map[string]bool{ev.Bidder: true}
	for offer, err := range p.offerService.ListOffersForItem(ctx, itemID) {
		if err != nil {
			return fmt.Errorf("failed to list offers of item %s: %w", itemID, err)
		}
		if !superseded[offer.ID] || queued[offer.Bidder] {
			continue
		}
		queued[offer.Bidder] = true

		payload, err := json.Marshal(supersededPayload{Event: ev, Bidder: offer.Bidder})
		if err != nil {
			return fmt.Errorf("failed to marshal superseded notice for %s: %v: %w", offer.Bidder, err, asynq.SkipRetry)
		}
		var taskID string
		if ev.EventID != "" {
			taskID = ev.EventID + ":" + offer.Bidder
		}
		task := asynq.NewTask(TypeOfferSuperseded, payload)
		if err := enqueueOnce(ctx, p.client, task, notificationOpts(taskID, asynq.Retention(fanOutRetention))); err != nil {
			return fmt.Errorf("failed to enqueue superseded notice for %s: %w", offer.Bidder, err)
		}
	}
	return nil
}

// HandleOfferSupersededTask tells one bidder that another offer won.
func (p *TaskProcessor) HandleOfferSupersededTask(ctx context.Context, t *asynq.Task) error {
	in, err := decode[supersededPayload](t)
	if err != nil {
		return err
	}
	item, err := p.loadItem(ctx, in.Event.ItemID)
	if err != nil {
		return err
	}
	m := p.decisionMessage(in.Event, item)
	m.To = in.Bidder
	m.Bidder = in.Bidder
	m.Kind = "declined"
	m.Superseded = true
	m.Amount = ""
	return p.sendOfferMessage(ctx, m)
}

// HandleContactReceivedTask forwards a contact request to the super admin.
func (p *TaskProcessor) HandleContactReceivedTask(ctx context.Context, t *asynq.Task) error {
	in, err := decode[contactPayload](t)
	if err != nil {
		return err
	}
	if p.cfg.SuperAdminEmail == "" {
		log.Printf("SUPER_ADMIN_EMAIL not configured, contact request %s stays in the store only", in.ContactID)
		return nil
	}
	c, err := p.contactService.FindContactByID(ctx, in.ContactID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("contact %s no longer exists: %w", in.ContactID, asynq.SkipRetry)
		}
		return err
	}

	var body bytes.Buffer
	data := struct {
		*models.Contact
		AppName string
	}{c, p.cfg.AppName}
	if err := contactTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render contact email: %v: %w", err, asynq.SkipRetry)
	}
	return p.send(ctx, envelope{
		To:      p.cfg.SuperAdminEmail,
		ReplyTo: c.Email,
		Subject: "New contact request from " + c.Name,
		Body:    body.String(),
	})
}

func (p *TaskProcessor) sendOfferMessage(ctx context.Context, m message) error {
	m.AppName = p.cfg.AppName

	var subject, body bytes.Buffer
	if err := subjectTemplate.Execute(&subject, m); err != nil {
		return fmt.Errorf("failed to render subject: %v: %w", err, asynq.SkipRetry)
	}
	if err := bodyTemplate.Execute(&body, m); err != nil {
		return fmt.Errorf("failed to render body: %v: %w", err, asynq.SkipRetry)
	}
	return p.send(ctx, envelope{To: m.To, Subject: subject.String(), Body: body.String()})
}

// headerValue flattens a value onto one line so that it cannot end the
// header it is written into.
func headerValue(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsControl), " ")
}

func (p *TaskProcessor) send(ctx context.Context, e envelope) error {
	to := headerValue(e.To)
	subject := headerValue(e.Subject)
	if to == "" || strings.ContainsAny(to, " ,;<>") {
		return fmt.Errorf("invalid recipient %q: %w", e.To, asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, to)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", headerValue(fromAddress)))
	if replyTo := headerValue(e.ReplyTo); replyTo != "" && !strings.ContainsAny(replyTo, " ,;<>") {
		sb.WriteString(fmt.Sprintf("Reply-To: %s\r\n", replyTo))
	}
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	body := strings.ReplaceAll(e.Body, "\r\n", "\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	if err := p.emailSender.Send(ctx, []string{to}, subject, []byte(sb.String())); err != nil {
		return fmt.Errorf("failed to send %q to %s: %w", subject, to, err)
	}
	log.Printf("Notification email sent: To=%s, Subject=%s", to, subject)
	return nil
}
