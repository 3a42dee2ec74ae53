package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/workflow"
)

// kindColors mirrors the on-screen highlight palette so console output and
// element highlights agree.
var kindColors = map[events.Kind]string{
	events.KindKeyboard:             "#EF4444",
	events.KindHotkey:               "#EF4444",
	events.KindTextSelection:        "#EAB308",
	events.KindClipboard:            "#EAB308",
	events.KindUIFocusChanged:       "#22C55E",
	events.KindUIPropertyChanged:    "#F97316",
	events.KindUIStructureChanged:   "#F97316",
	events.KindMouse:                "#F97316",
	events.KindTextInputCompleted:   "#7C3AED",
	events.KindDragDrop:             "#06B6D4",
	events.KindApplicationSwitch:    "#84CC16",
	events.KindBrowserTabNavigation: "#FDE68A",
	events.KindWindow:               "#6B7280",
}

const previewLimit = 48

// eventPrinter renders workflow events as one line each. Colour is decided by
// the renderer bound to the output writer, so redirected output stays plain.
type eventPrinter struct {
	out    io.Writer
	seq    lipgloss.Style
	dim    lipgloss.Style
	kinds  map[events.Kind]lipgloss.Style
	header lipgloss.Style
}

func newEventPrinter(out io.Writer) *eventPrinter {
	r := lipgloss.NewRenderer(out)
	p := &eventPrinter{
		out:    out,
		seq:    r.NewStyle().Foreground(lipgloss.Color("#6B7280")).Width(6).Align(lipgloss.Right),
		dim:    r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		kinds:  make(map[events.Kind]lipgloss.Style, len(kindColors)),
	}
	for kind, colour := range kindColors {
		p.kinds[kind] = r.NewStyle().Bold(kind.IsSemantic()).Foreground(lipgloss.Color(colour)).Width(24)
	}
	return p
}

func (p *eventPrinter) Title(text string) {
	fmt.Fprintln(p.out, p.header.Render(text))
}

func (p *eventPrinter) Print(ev events.WorkflowEvent) {
	kind := ev.Kind()
	style, ok := p.kinds[kind]
	if !ok {
		style = p.dim.Width(24)
	}
	fmt.Fprintf(p.out, "%s %s %s %s\n",
		p.seq.Render(fmt.Sprintf("#%d", ev.Metadata.Sequence)),
		p.dim.Render(ev.Metadata.Timestamp.UTC().Format("15:04:05.000")),
		style.Render(string(kind)),
		describeEvent(ev),
	)
}

func (p *eventPrinter) Counts(counts []workflow.KindCount) {
	for _, c := range counts {
		style, ok := p.kinds[c.Kind]
		if !ok {
			style = p.dim.Width(24)
		}
		fmt.Fprintf(p.out, "  %s %d\n", style.Render(string(c.Kind)), c.Count)
	}
}

// describeEvent summarises the payload fields a reader scans for.
func describeEvent(ev events.WorkflowEvent) string {
	target := ""
	if ev.Metadata.Element != nil && ev.Metadata.Element.Name != "" {
		target = " in " + quote(ev.Metadata.Element.Name)
	}
	switch p := ev.Payload.(type) {
	case *events.TextInputCompletedEvent:
		field := p.FieldName
		if field == "" {
			field = p.FieldType
		}
		return fmt.Sprintf("%s into %s (%s, %d keys, %s)", quote(p.TextValue), quote(field), p.InputMethod, p.KeystrokeCount, p.FlushReason)
	case *events.ApplicationSwitchEvent:
		from := p.FromApplication
		if from == "" {
			from = "-"
		}
		out := fmt.Sprintf("%s -> %s via %s", from, p.ToApplication, p.SwitchMethod)
		if p.DwellTimeMs != nil {
			out += fmt.Sprintf(" after %s", time.Duration(*p.DwellTimeMs)*time.Millisecond)
		}
		return out
	case *events.BrowserTabNavigationEvent:
		dest := p.URL
		if dest == "" {
			dest = p.Title
		}
		return fmt.Sprintf("%s %s %s via %s", p.Browser, p.Action, dest, p.Method)
	case *events.DragDropEvent:
		state := "completed"
		if !p.Completed {
			state = "interrupted"
		}
		return fmt.Sprintf("(%d,%d) -> (%d,%d) %.0fpx %s", p.StartPosition.X, p.StartPosition.Y, p.EndPosition.X, p.EndPosition.Y, p.Distance, state)
	case *events.HotkeyEvent:
		if p.Action != "" {
			return p.Combination + " (" + p.Action + ")"
		}
		return p.Combination
	case *events.KeyboardEvent:
		dir := "up"
		if p.IsKeyDown {
			dir = "down"
		}
		return fmt.Sprintf("%s %s%s", events.Combination(p.Modifiers, p.KeyCode), dir, target)
	case *events.MouseEvent:
		out := fmt.Sprintf("%s at (%d,%d)", p.Type, p.Position.X, p.Position.Y)
		if p.Button != events.ButtonNone {
			out = string(p.Button) + " " + out
		}
		return out + target
	case *events.ClipboardEvent:
		return fmt.Sprintf("%s %s (%d chars)", p.Action, quote(p.Content), p.ContentSize)
	case *events.TextSelectionEvent:
		return fmt.Sprintf("%s (%d chars)", quote(p.Text), p.Length)
	case *events.WindowEvent:
		return fmt.Sprintf("%s %s %s", p.ApplicationName, p.Action, quote(p.Title))
	case *events.UIFocusChangedEvent:
		return fmt.Sprintf("%s %s %s", p.ApplicationName, p.Role, quote(p.Name))
	case *events.UIPropertyChangedEvent:
		return fmt.Sprintf("%s = %s%s", p.PropertyName, quote(p.NewValue), target)
	case *events.UIStructureChangedEvent:
		return fmt.Sprintf("%s (%d children)%s", p.ChangeType, p.ChildCount, target)
	}
	return ""
}

func quote(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > previewLimit {
		s = string(r[:previewLimit-1]) + "…"
	}
	return fmt.Sprintf("%q", s)
}
