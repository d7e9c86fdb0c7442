package handlers

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"calendarservice/pkg/calendar"

	"github.com/gofiber/fiber/v2"
)

func sendHTML(c *fiber.Ctx, status int, body string) error {
	c.Type("html", "utf-8")
	return c.Status(status).SendString(body)
}

func link(href, text string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), html.EscapeString(text))
}

func indexPage() string {
	return "<h1>Google Calendar API Example</h1>" +
		link("/auth", "Login with Google") + "<br/>" +
		link("/events", "View Events") + "<br/>" +
		link("/create-event", "Create Event")
}

func loginPage(identity string) string {
	return "<h1>Login Successful</h1>" +
		fmt.Sprintf("<p>Signed in as %s</p>", html.EscapeString(identity)) +
		link("/events", "View Events") + "<br/>" +
		link("/create-event", "Create Event")
}

func eventsPage(events []calendar.Event) string {
	if len(events) == 0 {
		return "<h1>No upcoming events found.</h1>" + link("/", "Go Back")
	}
	var b strings.Builder
	b.WriteString("<h1>Upcoming Events</h1>")
	for _, e := range events {
		fmt.Fprintf(&b, "<p>%s - %s %s</p>",
			html.EscapeString(e.Summary),
			html.EscapeString(e.Start.String()),
			link("/delete-event/"+url.PathEscape(e.ID), "Delete"))
	}
	b.WriteString("<br/>" + link("/", "Go Back"))
	return b.String()
}

func createdPage(e calendar.Event) string {
	return "<h1>Event Created Successfully</h1>" +
		fmt.Sprintf("<p>Event ID: %s</p>", html.EscapeString(e.ID)) +
		link("/events", "View Events")
}

func deletedPage() string {
	return "<h1>Event Deleted Successfully</h1>" + link("/events", "View Events")
}

func reauthPage(msg string) string {
	return fmt.Sprintf("<h1>%s</h1>", html.EscapeString(msg)) +
		"<p>Your Google authorization is missing or no longer valid.</p>" +
		link("/reauthenticate", "Sign in again")
}
