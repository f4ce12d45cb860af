package actions

import (
	"context"

	"github.com/pkg/errors"

	"github.com/becomevocal/vanilla-agent-go/pkg/chat"
)

// Built-in action names.
const (
	ActionMessage         = "message"
	ActionMessageAndClick = "message_and_click"
	ActionNavThenClick    = "nav_then_click"
)

// Clicker triggers a click on the embedding page.
type Clicker interface {
	Click(ctx context.Context, selector string) error
}

// Navigator navigates the embedding page to a new URL.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// handleMessage surfaces the action's text as the display content.
func (m *Manager) handleMessage(ctx context.Context, act Action, msg chat.Message) (string, bool, error) {
	return act.Text(), true, nil
}

// handleMessageAndClick shows the text, then fires the click.
func (m *Manager) handleMessageAndClick(ctx context.Context, act Action, msg chat.Message) (string, bool, error) {
	selector := act.payloadString("selector")
	if selector == "" {
		selector = act.payloadString("click_selector")
	}
	if selector != "" && m.clicker != nil {
		if err := m.clicker.Click(ctx, selector); err != nil {
			return act.Text(), true, errors.Wrap(err, "message_and_click")
		}
	}
	return act.Text(), true, nil
}

// handleNavThenClick persists the follow-up click before navigating away,
// so the click survives the page load that destroys this process's state.
func (m *Manager) handleNavThenClick(ctx context.Context, act Action, msg chat.Message) (string, bool, error) {
	url := act.payloadString("url")
	if url == "" {
		return "", false, errors.New("nav_then_click: missing url")
	}
	nav := PendingNavigation{
		URL:        url,
		Selector:   act.payloadString("selector"),
		OnLoadText: act.payloadString("on_load_text"),
	}
	if err := m.store.SavePendingNavigation(ctx, nav); err != nil {
		return "", false, errors.Wrap(err, "nav_then_click: save pending navigation")
	}
	if m.nav != nil {
		if err := m.nav.Navigate(ctx, url); err != nil {
			return "", true, errors.Wrap(err, "nav_then_click")
		}
	}
	// The on-load text surfaces after the navigation completes, not now.
	return "", true, nil
}

// ResumePendingNavigation fires the click persisted by a nav_then_click
// action on the previous page. Call it once after the session hydrates. It
// returns the stored on-load text, empty when nothing was pending.
func (m *Manager) ResumePendingNavigation(ctx context.Context) (string, error) {
	nav, err := m.store.TakePendingNavigation(ctx)
	if err != nil {
		return "", errors.Wrap(err, "resume pending navigation")
	}
	if nav == nil {
		return "", nil
	}
	if nav.Selector != "" && m.clicker != nil {
		if err := m.clicker.Click(ctx, nav.Selector); err != nil {
			return nav.OnLoadText, errors.Wrap(err, "resume pending navigation: click")
		}
	}
	return nav.OnLoadText, nil
}
