package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/jwalitptl/notification-ledger/internal/model"
)

var reasonPhrases = map[model.Reason]string{
	model.ReasonMentioned:          "mentioned you",
	model.ReasonAssigned:           "assigned you",
	model.ReasonWatched:            "changed a work package you watch",
	model.ReasonSubscribed:         "updated something you subscribed to",
	model.ReasonCommented:          "commented",
	model.ReasonCreated:            "created",
	model.ReasonProcessed:          "processed",
	model.ReasonPrioritized:        "changed the priority",
	model.ReasonScheduled:          "changed the dates",
	model.ReasonResponsible:        "made you accountable",
	model.ReasonDateAlertStartDate: "start date is approaching",
	model.ReasonDateAlertDueDate:   "due date is approaching",
}

// Phrase describes a reason for humans.
func Phrase(r model.Reason) string {
	if p, ok := reasonPhrases[r]; ok {
		return p
	}
	return r.String()
}

// Item is one notification as shown in a mail. Resource and Actor may be nil
// when they could not be loaded.
type Item struct {
	Notification *model.Notification
	Resource     *model.Resource
	Actor        *model.User
}

func (i Item) title() string {
	if i.Resource != nil && i.Resource.Title != "" {
		return i.Resource.Title
	}
	return i.Notification.Resource.String()
}

func (i Item) line() string {
	if i.Notification.IsDateAlert() {
		return fmt.Sprintf("%s: %s", i.title(), Phrase(i.Notification.Reason))
	}
	actor := "Someone"
	if i.Actor != nil && i.Actor.Name != "" {
		actor = i.Actor.Name
	}
	return fmt.Sprintf("%s %s on %s", actor, Phrase(i.Notification.Reason), i.title())
}

// Composer builds alert and digest messages.
type Composer struct {
	BaseURL string
}

func (c Composer) link(i Item) string {
	if c.BaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/notifications/%s", strings.TrimRight(c.BaseURL, "/"), i.Notification.ID)
}

// Alert composes the immediate mail for one notification.
func (c Composer) Alert(to *model.User, item Item) Message {
	var subject string
	switch item.Notification.Reason {
	case model.ReasonMentioned:
		subject = fmt.Sprintf("You were mentioned in %s", item.title())
	case model.ReasonDateAlertStartDate:
		subject = fmt.Sprintf("Start date reminder: %s", item.title())
	case model.ReasonDateAlertDueDate:
		subject = fmt.Sprintf("Due date reminder: %s", item.title())
	default:
		subject = item.line()
	}

	var text, body strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\n%s.\n", to.Name, item.line())
	fmt.Fprintf(&body, "<p>Hello %s,</p><p>%s.</p>", html.EscapeString(to.Name), html.EscapeString(item.line()))
	if link := c.link(item); link != "" {
		fmt.Fprintf(&text, "\n%s\n", link)
		fmt.Fprintf(&body, `<p><a href="%s">Open notification</a></p>`, html.EscapeString(link))
	}

	return Message{
		To:      to.Email,
		ToName:  to.Name,
		Subject: subject,
		Text:    text.String(),
		HTML:    body.String(),
	}
}

// Digest composes one reminder mail for all of a recipient's pending items.
func (c Composer) Digest(to *model.User, items []Item) Message {
	subject := "1 unread notification"
	if len(items) != 1 {
		subject = fmt.Sprintf("%d unread notifications", len(items))
	}

	var text, body strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\nHere is what happened since your last reminder:\n\n", to.Name)
	fmt.Fprintf(&body, "<p>Hello %s,</p><p>Here is what happened since your last reminder:</p><ul>", html.EscapeString(to.Name))
	for _, item := range items {
		fmt.Fprintf(&text, "- %s\n", item.line())
		if link := c.link(item); link != "" {
			fmt.Fprintf(&body, `<li><a href="%s">%s</a></li>`, html.EscapeString(link), html.EscapeString(item.line()))
		} else {
			fmt.Fprintf(&body, "<li>%s</li>", html.EscapeString(item.line()))
		}
	}
	body.WriteString("</ul>")

	return Message{
		To:      to.Email,
		ToName:  to.Name,
		Subject: subject,
		Text:    text.String(),
		HTML:    body.String(),
	}
}
