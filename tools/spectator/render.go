package spectator

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"

	"snakeroyale/server/internal/arena"
	"snakeroyale/server/internal/simulation"
)

const (
	sidebarWidth   = 26
	leaderboardLen = 10
	noticeTTL      = 4 * time.Second
)

var (
	styleBorder = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleFood   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleDead   = tcell.StyleDefault.Foreground(tcell.ColorDimGray)
	styleText   = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleNotice = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorYellow)
)

// Layout splits the terminal into the board and the leaderboard sidebar.
type Layout struct {
	BoardW   int
	BoardH   int
	SidebarX int
}

// ComputeLayout reserves the bottom row for status text and the right columns for the sidebar.
// Terminals too narrow for a sidebar draw the board alone.
func ComputeLayout(cols, rows int) Layout {
	layout := Layout{BoardW: cols, BoardH: rows - 1, SidebarX: -1}
	if cols >= sidebarWidth*2 {
		layout.BoardW = cols - sidebarWidth
		layout.SidebarX = layout.BoardW + 1
	}
	if layout.BoardH < 0 {
		layout.BoardH = 0
	}
	return layout
}

// Project maps an arena position onto a board cell inside the border.
func (l Layout) Project(a arena.Arena, p arena.Vec) (int, int, bool) {
	innerW, innerH := l.BoardW-2, l.BoardH-2
	if innerW <= 0 || innerH <= 0 || a.Width <= 0 || a.Height <= 0 {
		return 0, 0, false
	}
	if !a.Contains(p) {
		return 0, 0, false
	}
	x := int(p.X / a.Width * float64(innerW))
	y := int(p.Y / a.Height * float64(innerH))
	return 1 + min(x, innerW-1), 1 + min(y, innerH-1), true
}

// Leaderboard orders entities by score, then by name, and keeps the first limit entries.
func Leaderboard(entities []simulation.EntityView, limit int) []simulation.EntityView {
	ranked := append([]simulation.EntityView(nil), entities...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Name < ranked[j].Name
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

var hslPattern = regexp.MustCompile(`^hsl\(\s*([\d.]+)\s*,\s*([\d.]+)%\s*,\s*([\d.]+)%\s*\)$`)

// ParseHSL converts the server colour tag "hsl(h, s%, l%)" into a terminal colour.
func ParseHSL(tag string) (tcell.Color, bool) {
	match := hslPattern.FindStringSubmatch(tag)
	if match == nil {
		return tcell.ColorDefault, false
	}
	h, _ := strconv.ParseFloat(match[1], 64)
	s, _ := strconv.ParseFloat(match[2], 64)
	l, _ := strconv.ParseFloat(match[3], 64)
	h = math.Mod(h, 360) / 360
	s, l = math.Min(s, 100)/100, math.Min(l, 100)/100

	if s == 0 {
		v := int32(math.Round(l * 255))
		return tcell.NewRGBColor(v, v, v), true
	}
	q := l * (1 + s)
	if l >= 0.5 {
		q = l + s - l*s
	}
	p := 2*l - q
	r := hueToRGB(p, q, h+1.0/3)
	g := hueToRGB(p, q, h)
	b := hueToRGB(p, q, h-1.0/3)
	return tcell.NewRGBColor(int32(math.Round(r*255)), int32(math.Round(g*255)), int32(math.Round(b*255))), true
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	default:
		return p
	}
}

// Renderer draws snapshots onto a tcell screen. It is not safe for concurrent use.
type Renderer struct {
	screen   tcell.Screen
	now      func() time.Time
	notice   string
	noticeAt time.Time
	last     *simulation.Snapshot
}

// NewRenderer wraps an initialised screen.
func NewRenderer(screen tcell.Screen) *Renderer {
	return &Renderer{screen: screen, now: time.Now}
}

// Apply folds an update into the renderer state and redraws.
func (r *Renderer) Apply(update Update) {
	if update.Notice != "" {
		r.notice = update.Notice
		r.noticeAt = r.now()
	}
	if update.Snapshot != nil {
		r.last = update.Snapshot
	}
	r.Draw()
}

// Draw repaints the most recent snapshot.
func (r *Renderer) Draw() {
	r.screen.Clear()
	cols, rows := r.screen.Size()
	layout := ComputeLayout(cols, rows)
	r.drawBorder(layout)
	if r.last == nil {
		r.text(2, rows-1, styleText, "waiting for the first snapshot...")
		r.screen.Show()
		return
	}
	snap := r.last

	//1.- Food first so snakes passing over it stay visible.
	for _, food := range snap.Food {
		if x, y, ok := layout.Project(snap.Arena, food.Position); ok {
			r.screen.SetContent(x, y, '*', nil, styleFood)
		}
	}
	//2.- Bodies tail to head so the head glyph wins overlapping cells.
	for _, entity := range snap.Entities {
		style := styleDead
		if entity.Alive {
			style = tcell.StyleDefault.Foreground(tcell.ColorGreen)
			if color, ok := ParseHSL(entity.Color); ok {
				style = tcell.StyleDefault.Foreground(color)
			}
		}
		for i := len(entity.Body) - 1; i >= 0; i-- {
			x, y, ok := layout.Project(snap.Arena, entity.Body[i])
			if !ok {
				continue
			}
			glyph := 'o'
			if i == 0 {
				glyph = '@'
				if !entity.Alive {
					glyph = 'x'
				}
			}
			r.screen.SetContent(x, y, glyph, nil, style)
		}
	}
	r.drawSidebar(layout, snap)
	r.drawStatus(layout, rows, snap)
	r.screen.Show()
}

func (r *Renderer) drawBorder(layout Layout) {
	w, h := layout.BoardW, layout.BoardH
	if w < 2 || h < 2 {
		return
	}
	for x := 1; x < w-1; x++ {
		r.screen.SetContent(x, 0, tcell.RuneHLine, nil, styleBorder)
		r.screen.SetContent(x, h-1, tcell.RuneHLine, nil, styleBorder)
	}
	for y := 1; y < h-1; y++ {
		r.screen.SetContent(0, y, tcell.RuneVLine, nil, styleBorder)
		r.screen.SetContent(w-1, y, tcell.RuneVLine, nil, styleBorder)
	}
	r.screen.SetContent(0, 0, tcell.RuneULCorner, nil, styleBorder)
	r.screen.SetContent(w-1, 0, tcell.RuneURCorner, nil, styleBorder)
	r.screen.SetContent(0, h-1, tcell.RuneLLCorner, nil, styleBorder)
	r.screen.SetContent(w-1, h-1, tcell.RuneLRCorner, nil, styleBorder)
}

func (r *Renderer) drawSidebar(layout Layout, snap *simulation.Snapshot) {
	if layout.SidebarX < 0 {
		return
	}
	x := layout.SidebarX
	r.text(x, 0, styleText.Bold(true), fmt.Sprintf("Round %d  %s", snap.Round, snap.Status))
	for i, entity := range Leaderboard(snap.Entities, leaderboardLen) {
		style := styleText
		if !entity.Alive {
			style = styleDead
		}
		tag := ""
		if entity.IsBot {
			tag = " [bot]"
		}
		r.text(x, i+2, style, fmt.Sprintf("%2d. %-12s %4d%s", i+1, truncate(entity.Name, 12), entity.Score, tag))
	}
}

func (r *Renderer) drawStatus(layout Layout, rows int, snap *simulation.Snapshot) {
	alive := 0
	for _, entity := range snap.Entities {
		if entity.Alive {
			alive++
		}
	}
	status := fmt.Sprintf("tick %d  alive %d/%d  food %d  q to quit", snap.Tick, alive, len(snap.Entities), len(snap.Food))
	switch {
	case snap.Paused:
		status = "PAUSED  " + status
	case snap.Keynote:
		status = "KEYNOTE  " + status
	}
	r.text(0, rows-1, styleText, status)
	if r.notice != "" && r.now().Sub(r.noticeAt) < noticeTTL {
		r.text(2, 0, styleNotice, " "+r.notice+" ")
	}
}

func (r *Renderer) text(x, y int, style tcell.Style, value string) {
	for _, ch := range value {
		r.screen.SetContent(x, y, ch, nil, style)
		x++
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
