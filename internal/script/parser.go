package script

import (
	"strings"
)

// SpeakerPolicy decides what happens to dialogue whose speaker is unknown.
type SpeakerPolicy string

const (
	// SpeakerNarrator attributes unknown speakers to the narrator.
	SpeakerNarrator SpeakerPolicy = "narrator"
	// SpeakerDrop keeps the line as unattributed action text.
	SpeakerDrop SpeakerPolicy = "drop"
)

// Options tune Parse.
type Options struct {
	UnknownSpeaker SpeakerPolicy
}

// Parse classifies raw screenplay text against the known character names
// using the default options.
func Parse(raw string, known []string) ParsedScript {
	return ParseWithOptions(raw, known, Options{})
}

// ParseWithOptions classifies raw line by line. It never fails; ambiguous
// lines become action text and are reported in Warnings.
func ParseWithOptions(raw string, known []string, opts Options) ParsedScript {
	if opts.UnknownSpeaker == "" {
		opts.UnknownSpeaker = SpeakerNarrator
	}
	p := &parser{names: newNameIndex(known), opts: opts}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	for i, line := range strings.Split(raw, "\n") {
		p.consume(i+1, line)
	}
	p.closeBlock()

	characters := make([]string, 0, len(p.names.byKey))
	seen := make(map[string]struct{}, len(known))
	for _, name := range known {
		canonical, ok := p.names.lookup(name)
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		characters = append(characters, canonical)
	}
	return ParsedScript{Elements: p.elements, Characters: characters, Warnings: p.warnings}
}

type cueBlock struct {
	active    bool
	character string
	lines     int
	pending   string
	pendingAt int
}

type parser struct {
	names    *nameIndex
	opts     Options
	elements []Element
	warnings []Warning
	block    cueBlock
	lastCue  string
}

func (p *parser) emit(line int, el Element) {
	el.Line = line
	p.elements = append(p.elements, el)
}

func (p *parser) warn(line int, text, reason string) {
	p.warnings = append(p.warnings, Warning{Line: line, Text: text, Reason: reason})
}

// closeBlock ends the current cue block, turning a dangling parenthetical
// into a character action.
func (p *parser) closeBlock() {
	p.flushPending()
	p.block = cueBlock{}
}

func (p *parser) consume(lineNo int, raw string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if p.block.active && p.block.lines > 0 {
			p.closeBlock()
		}
		return
	}
	clean := stripMarkup(trimmed)
	if clean == "" {
		return
	}

	if el, ok := classifyTransition(clean); ok {
		p.closeBlock()
		p.emit(lineNo, el)
		return
	}
	if el, ok := classifyHeading(clean); ok {
		p.closeBlock()
		p.emit(lineNo, el)
		return
	}
	if el, ok := classifySceneMarker(clean); ok {
		p.closeBlock()
		p.emit(lineNo, el)
		return
	}
	if cue, actions, ok := classifyCue(clean, p.names); ok {
		p.closeBlock()
		p.emit(lineNo, cue)
		for _, action := range actions {
			p.emit(lineNo, action)
		}
		p.block = cueBlock{active: true, character: cue.Character}
		p.lastCue = cue.Character
		return
	}
	if el, ok := classifySoundCue(clean); ok {
		p.closeBlock()
		p.emit(lineNo, el)
		return
	}

	if p.block.active {
		if paren, ok := classifyParenthetical(clean); ok {
			p.flushPending()
			p.block.pending, p.block.pendingAt = paren, lineNo
			return
		}
		p.emit(lineNo, Element{
			Kind:          ElementDialogue,
			Text:          trimmed,
			Character:     p.block.character,
			Parenthetical: p.block.pending,
		})
		p.block.pending = ""
		p.block.lines++
		return
	}

	if parts, ok := classifyInlineDialogue(trimmed, p.names); ok {
		for _, part := range parts {
			if part.dialogue == nil {
				p.emitAction(lineNo, part.prose)
				continue
			}
			p.emitSpoken(lineNo, trimmed, part.dialogue.text, *part.dialogue)
		}
		return
	}
	if speaker, ok := classifySpeaker(clean, p.names); ok {
		p.emitSpoken(lineNo, trimmed, trimmed, speaker)
		return
	}
	if el, bare, ok := classifyCamera(clean); ok {
		p.emit(lineNo, el)
		if !bare {
			p.emitAction(lineNo, trimmed)
		}
		return
	}
	if paren, ok := classifyParenthetical(clean); ok {
		character := p.lastCue
		if character == "" {
			character = Narrator
		}
		p.emit(lineNo, Element{Kind: ElementAction, Text: paren, Character: character, Parenthetical: paren})
		return
	}

	switch {
	case looksLikeHeading(clean):
		p.warn(lineNo, trimmed, "unrecognized scene heading")
	case looksLikeCue(clean):
		p.warn(lineNo, trimmed, "upper-case line does not name a known character")
	}
	p.emitAction(lineNo, trimmed)
}

// flushPending emits an unconsumed parenthetical without ending the block.
func (p *parser) flushPending() {
	if p.block.pending == "" {
		return
	}
	p.emit(p.block.pendingAt, Element{
		Kind:          ElementAction,
		Text:          p.block.pending,
		Character:     p.block.character,
		Parenthetical: p.block.pending,
	})
	p.block.pending = ""
}

func (p *parser) emitAction(lineNo int, text string) {
	p.emit(lineNo, Element{Kind: ElementAction, Text: text})
	for _, action := range attachedActions(text, p.names) {
		p.emit(lineNo, action)
	}
}

func (p *parser) emitSpoken(lineNo int, source, fallback string, d speakerLine) {
	if d.known {
		p.emit(lineNo, Element{Kind: ElementDialogue, Text: d.text, Character: d.name, Parenthetical: d.parenthetical})
		p.lastCue = d.name
		return
	}
	if p.opts.UnknownSpeaker == SpeakerDrop {
		p.warn(lineNo, source, "unknown speaker "+quoteName(d.name)+" kept as action")
		p.emit(lineNo, Element{Kind: ElementAction, Text: fallback})
		return
	}
	p.warn(lineNo, source, "unknown speaker "+quoteName(d.name)+" attributed to narrator")
	p.emit(lineNo, Element{Kind: ElementDialogue, Text: d.text, Character: Narrator, Parenthetical: d.parenthetical})
}

func quoteName(name string) string {
	if name == "" {
		return `""`
	}
	return `"` + name + `"`
}
