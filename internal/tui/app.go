// Package tui is the terminal inbox. It renders from the cache, the roster
// and the pager, and repaints on bus events; it never talks to the platform
// directly except for mark-read and the initial conversation list.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/relaydesk/relay/internal/api"
	"github.com/relaydesk/relay/internal/bus"
	"github.com/relaydesk/relay/internal/link"
	"github.com/relaydesk/relay/internal/outbox"
	"github.com/relaydesk/relay/internal/pager"
	"github.com/relaydesk/relay/internal/roster"
	"github.com/relaydesk/relay/internal/tui/keys"
	"github.com/relaydesk/relay/internal/tui/model"
	"github.com/relaydesk/relay/internal/tui/views"
)

const (
	pageInbox  = "inbox"
	pageThread = "thread"

	flashTTL = 5 * time.Second
)

// App is the TUI application shell.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	registry *keys.Registry
	flash    *model.Flash

	statusBar *views.StatusBar
	inbox     *views.InboxList
	thread    *views.ThreadView
	composer  *views.Composer
	filter    *views.FilterBar

	bus     *bus.Bus
	roster  *roster.Projector
	pager   *pager.Controller
	sender  *outbox.Sender
	client  *api.Client
	machine *link.Machine
	logger  *zap.Logger

	profile string
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewApp wires the TUI together.
func NewApp(b *bus.Bus, r *roster.Projector, p *pager.Controller, s *outbox.Sender, client *api.Client, machine *link.Machine, logger *zap.Logger, profile string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = zap.NewNop()
	}
	flash := &model.Flash{}

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		registry:  keys.NewRegistry(),
		flash:     flash,
		statusBar: views.NewStatusBar(flash),
		inbox:     views.NewInboxList(),
		thread:    views.NewThreadView(),
		composer:  views.NewComposer(),
		filter:    views.NewFilterBar(),
		bus:       b,
		roster:    r,
		pager:     p,
		sender:    s,
		client:    client,
		machine:   machine,
		logger:    logger.Named("tui"),
		profile:   profile,
		ctx:       ctx,
		cancel:    cancel,
	}

	p.SetAnchor(a.thread)
	a.statusBar.SetProfile(profile)
	a.statusBar.SetLinkState(machine.Current())

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.Bind(keys.ScopeGlobal, &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Hint:    "q:quit",
		Handler: func() { a.app.Stop() },
	})
	a.registry.Bind(pageInbox, &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Hint:    "/:filter",
		Handler: func() { a.app.SetFocus(a.filter) },
	})
	a.registry.Bind(pageInbox, &keys.Action{
		Rune: 'm', Key: tcell.KeyRune,
		Hint: "m:more",
		Handler: func() {
			a.roster.LoadMore()
			a.refreshInbox()
		},
	})
	a.registry.Bind(pageThread, &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Hint:    "r:retry",
		Handler: func() { a.retryLastFailed() },
	})
	a.registry.Bind(pageThread, &keys.Action{
		Rune: 'G', Key: tcell.KeyRune,
		Hint: "G:bottom",
		Handler: func() {
			a.thread.ScrollToEnd()
		},
	})
}

func (a *App) setupCallbacks() {
	a.inbox.SetSelectedFunc(func(row, col int) {
		if id := a.inbox.Selected(); id != "" {
			a.openConversation(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		conversationID := a.pager.Active()
		if conversationID == "" {
			return
		}
		a.sender.SendText(conversationID, text)
		a.thread.ScrollToEnd()
	})

	a.filter.SetOnSearch(func(query string) {
		a.roster.SetSearch(query)
		a.refreshInbox()
	})
	a.filter.SetOnTag(func(tag string) {
		a.roster.SetTag(tag)
		a.refreshInbox()
	})
	a.filter.SetOnClose(func() {
		a.app.SetFocus(a.inbox)
	})
}

func (a *App) setupLayout() {
	inboxFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.filter, 1, 0, false).
		AddItem(a.inbox, 0, 1, true)

	threadFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage(pageInbox, inboxFlex, true, true)
	a.pages.AddPage(pageThread, threadFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.statusBar.SetHints(a.registry.Hints(pageInbox))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == pageThread {
			a.showInbox()
			return nil
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == pageThread && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		// Scrolling against the top of the thread asks for older history.
		if currentPage == pageThread && isScrollUpKey(event) && a.thread.AtTop() {
			a.pager.NoteTopVisible()
		}

		if a.registry.Handle(currentPage, event) {
			return nil
		}

		return event
	})
}

func isScrollUpKey(event *tcell.EventKey) bool {
	switch event.Key() {
	case tcell.KeyUp, tcell.KeyPgUp, tcell.KeyHome:
		return true
	case tcell.KeyRune:
		return event.Rune() == 'k'
	default:
		return false
	}
}

func (a *App) openConversation(id string) {
	go func() {
		tl, err := a.pager.Select(a.ctx, id)
		if err != nil {
			a.flash.Set(model.Error, "Load failed: "+err.Error(), flashTTL)
			a.app.QueueUpdateDraw(a.statusBar.Refresh)
			return
		}

		title := id
		if c, ok := a.roster.Get(id); ok && c.Title != "" {
			title = c.Title
		}
		a.roster.MarkRead(id)
		go func() {
			if err := a.client.MarkRead(a.ctx, id); err != nil {
				a.logger.Debug("mark read failed", zap.String("conversation", id), zap.Error(err))
			}
		}()

		a.app.QueueUpdateDraw(func() {
			a.thread.SetConversationTitle(title)
			a.thread.Update(tl.Messages())
			a.thread.ScrollToEnd()
			a.pages.SwitchToPage(pageThread)
			a.statusBar.SetHints(a.registry.Hints(pageThread))
			a.app.SetFocus(a.thread)
			a.refreshInbox()
		})
	}()
}

func (a *App) showInbox() {
	a.pages.SwitchToPage(pageInbox)
	a.statusBar.SetHints(a.registry.Hints(pageInbox))
	a.app.SetFocus(a.inbox)
	a.refreshInbox()
}

func (a *App) retryLastFailed() {
	conversationID := a.pager.Active()
	if conversationID == "" {
		return
	}
	m, ok := a.sender.LastFailed(conversationID)
	if !ok {
		a.flash.Set(model.Info, "Nothing to retry", flashTTL)
		a.statusBar.Refresh()
		return
	}
	if a.sender.Retry(m.ID) {
		a.flash.Set(model.Info, "Retrying…", flashTTL)
		a.statusBar.Refresh()
	}
}

func (a *App) refreshInbox() {
	_, filtered, _ := a.roster.Counts()
	a.inbox.Update(a.roster.Visible(), filtered, a.filter.GetText(), a.roster.HasMore())
}

func (a *App) refreshThread() {
	conversationID := a.pager.Active()
	if conversationID == "" {
		return
	}
	tl, ok := a.pager.Timeline(conversationID)
	if !ok {
		return
	}
	follow := a.thread.NearBottom()
	a.thread.Update(tl.Messages())
	if follow {
		a.thread.ScrollToEnd()
	}
}

// Run starts the event loop and blocks until quit.
func (a *App) Run() error {
	go a.loadInitialRoster()
	go a.consumeEvents()
	go a.tickClock()
	return a.app.Run()
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) loadInitialRoster() {
	convs, err := a.client.ListConversations(a.ctx, api.ListFilters{})
	if err != nil {
		a.flash.Set(model.Error, "List failed: "+err.Error(), flashTTL)
		a.app.QueueUpdateDraw(a.statusBar.Refresh)
		return
	}
	a.roster.Replace(convs)
	a.app.QueueUpdateDraw(a.refreshInbox)
}

// consumeEvents repaints on bus traffic. All mutation already happened in
// the engine by the time an event arrives here.
func (a *App) consumeEvents() {
	events, unsub := a.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case <-a.ctx.Done():
			return
		case evt := <-events:
			a.handleEvent(evt)
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindRosterUpdated:
		a.app.QueueUpdateDraw(a.refreshInbox)
	case bus.KindTimelineUpdated:
		ref, ok := evt.Payload.(bus.TimelineRef)
		if !ok || ref.ConversationID != a.pager.Active() {
			return
		}
		a.app.QueueUpdateDraw(a.refreshThread)
	case bus.KindTimelineAppended:
		ref, ok := evt.Payload.(bus.Appended)
		if !ok || ref.ConversationID != a.pager.Active() {
			return
		}
		if !a.thread.NearBottom() {
			a.flash.Set(model.Info, "New message below (G)", flashTTL)
		}
		a.app.QueueUpdateDraw(a.statusBar.Refresh)
	case bus.KindSendFailed:
		failure, ok := evt.Payload.(bus.SendFailure)
		if !ok {
			return
		}
		a.flash.Set(model.Error, "Send failed: "+failure.Reason, flashTTL)
		a.app.QueueUpdateDraw(a.statusBar.Refresh)
	case bus.KindFetchFailed:
		failure, ok := evt.Payload.(bus.FetchFailure)
		if !ok {
			return
		}
		a.flash.Set(model.Error, "Fetch failed: "+failure.Reason, flashTTL)
		a.app.QueueUpdateDraw(a.statusBar.Refresh)
	case bus.KindLinkChanged:
		change, ok := evt.Payload.(link.StateChange)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetLinkState(change.To)
		})
	}
}

// tickClock keeps the status bar clock and flash expiry fresh.
func (a *App) tickClock() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.statusBar.Refresh)
		}
	}
}

var _ pager.Anchor = (*views.ThreadView)(nil)
