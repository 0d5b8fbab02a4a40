package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit            key.Binding
	reload          key.Binding
	toggleHelp      key.Binding
	moveUp          key.Binding
	moveDown        key.Binding
	prevProject     key.Binding
	nextProject     key.Binding
	taskInfo        key.Binding
	advanceStatus   key.Binding
	cancelTask      key.Binding
	cycleHealth     key.Binding
	search          key.Binding
	toggleVariances key.Binding
	toggleNotes     key.Binding
	copyTask        key.Binding
	activity        key.Binding
	comments        key.Binding
	deleteComment   key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:            key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:          key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveUp:          key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "task up")),
		moveDown:        key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "task down")),
		prevProject:     key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "prev project")),
		nextProject:     key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "next project")),
		taskInfo:        key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i/enter", "task info")),
		advanceStatus:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "advance status")),
		cancelTask:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel task")),
		cycleHealth:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "health filter")),
		search:          key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		toggleVariances: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "toggle variances")),
		toggleNotes:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "toggle notes")),
		copyTask:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy summary")),
		activity:        key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "activity")),
		comments:        key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "comments")),
		deleteComment:   key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "delete comment")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.taskInfo, k.advanceStatus, k.cycleHealth, k.search, k.copyTask, k.toggleHelp, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveUp, k.moveDown, k.prevProject, k.nextProject, k.taskInfo, k.activity},
		{k.advanceStatus, k.cancelTask, k.copyTask, k.comments, k.deleteComment},
		{k.cycleHealth, k.search, k.toggleVariances, k.toggleNotes, k.toggleHelp, k.reload, k.quit},
	}
}
