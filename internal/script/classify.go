package script

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var (
	transitionPattern  = regexp.MustCompile(`(?i)^(?:fade\s+in|fade\s+out|fade\s+to\s+black|fade\s+to|cut\s+to(?:\s+black)?|smash\s+cut(?:\s+to)?|match\s+cut(?:\s+to)?|jump\s+cut(?:\s+to)?|dissolve\s+to|wipe\s+to|iris\s+(?:in|out))\s*[:.!]*$`)
	headingPattern     = regexp.MustCompile(`(?i)^(int\.?\s*/\s*ext|ext\.?\s*/\s*int|i\s*/\s*e|int|ext)(?:\.\s*|\s+|\s*[-–—:]\s*)(.+)$`)
	headingTimePattern = regexp.MustCompile(`^(.*?)\s+[-–—]+\s*([^-–—]+?)\s*\.?$`)
	headingLikePattern = regexp.MustCompile(`(?i)^(?:int|ext|interior|exterior|i/e|scene)\b`)
	markerPattern      = regexp.MustCompile(`(?i)^scene\s*(\d+)\b\s*[:.\-–—]?\s*(.*)$`)
	markerTitlePattern = regexp.MustCompile(`(?i)^scene\s*:\s*(.+)$`)
	extensionPattern   = regexp.MustCompile(`(?i)\(\s*(v\.?\s*o\.?|o\.?\s*s\.?|o\.?\s*c\.?|cont'?d\.?|continued)\s*\)`)
	parenPattern       = regexp.MustCompile(`\(([^()]*)\)`)
	soundPattern       = regexp.MustCompile(`(?i)^(sfx|sound(?:\s+effects?)?|music)\s*:\s*(.+)$`)
	speakerPattern     = regexp.MustCompile(`^([\p{L}][\p{L}\p{N} .'\-]{0,40}?)\s*(?:\(([^()]*)\))?\s*:\s*(.+)$`)
	inlineSaysPattern  = regexp.MustCompile(`(?i)\bsays\s*[:,]?\s*["“]([^"”]*)["”]`)
	cameraPattern      = regexp.MustCompile(`(?i)\b(zoom(?:s|ed|ing)?|pan(?:s|ned|ning)?|cuts?\s+to|close[\s-]?ups?|wide[\s-]shots?|tracking[\s-]shots?|follow(?:s|ed|ing)?)\b`)
	cameraLeadPattern  = regexp.MustCompile(`(?i)^(?:the\s+)?camera\s*$`)
	shoutPattern       = regexp.MustCompile(`^\p{Lu}[\p{Lu}\p{N} .'\-]*(?:\([^()]*\))?:?$`)
)

// nameIndex resolves speaker names case-insensitively to the roster's casing.
type nameIndex struct {
	folder   cases.Caser
	byKey    map[string]string
	maxWords int
}

func newNameIndex(known []string) *nameIndex {
	idx := &nameIndex{folder: cases.Fold(), byKey: make(map[string]string, len(known)), maxWords: 1}
	for _, name := range known {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := idx.key(name)
		if _, exists := idx.byKey[key]; exists {
			continue
		}
		idx.byKey[key] = name
		if words := len(strings.Fields(name)); words > idx.maxWords {
			idx.maxWords = words
		}
	}
	return idx
}

func (n *nameIndex) key(name string) string {
	return n.folder.String(strings.Join(strings.Fields(name), " "))
}

func (n *nameIndex) lookup(name string) (string, bool) {
	canonical, ok := n.byKey[n.key(name)]
	return canonical, ok
}

// suffixMatch finds the longest trailing run of words naming a known
// character. start is the index of the first word of the name.
func (n *nameIndex) suffixMatch(words []string) (string, int, bool) {
	limit := n.maxWords
	if limit > len(words) {
		limit = len(words)
	}
	for size := limit; size >= 1; size-- {
		start := len(words) - size
		candidate := make([]string, 0, size)
		for _, w := range words[start:] {
			candidate = append(candidate, trimWordPunct(w))
		}
		if canonical, ok := n.lookup(strings.Join(candidate, " ")); ok {
			return canonical, start, true
		}
	}
	return "", 0, false
}

func trimWordPunct(word string) string {
	return strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '.'
	})
}

// stripMarkup removes markdown emphasis and heading markers around a line.
func stripMarkup(line string) string {
	line = strings.ReplaceAll(line, "**", "")
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*_#"))
}

func unquote(text string) string {
	text = strings.TrimSpace(text)
	if len(text) < 2 {
		return text
	}
	r := []rune(text)
	first, last := r[0], r[len(r)-1]
	if (first == '"' && last == '"') || (first == '“' && last == '”') {
		return strings.TrimSpace(string(r[1 : len(r)-1]))
	}
	return text
}

func isUpper(text string) bool {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

func hasAlnum(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0
}

func classifyTransition(line string) (Element, bool) {
	if !transitionPattern.MatchString(line) {
		return Element{}, false
	}
	return Element{Kind: ElementTransition, Text: line}, true
}

func classifyHeading(line string) (Element, bool) {
	m := headingPattern.FindStringSubmatch(line)
	if m == nil {
		return Element{}, false
	}
	rest := strings.TrimSpace(m[2])
	location, timeOfDay := rest, ""
	if tm := headingTimePattern.FindStringSubmatch(rest); tm != nil {
		location, timeOfDay = strings.TrimSpace(tm[1]), strings.TrimSpace(tm[2])
	}
	location = strings.TrimRight(location, " .:")
	if !hasAlnum(location) {
		return Element{}, false
	}
	return Element{Kind: ElementSceneHeading, Text: line, Location: location, TimeOfDay: timeOfDay}, true
}

func classifySceneMarker(line string) (Element, bool) {
	if m := markerPattern.FindStringSubmatch(line); m != nil {
		number, err := strconv.Atoi(m[1])
		if err != nil {
			number = 0
		}
		return Element{Kind: ElementSceneMarker, Text: line, SceneNumber: number, Location: strings.TrimSpace(m[2])}, true
	}
	if m := markerTitlePattern.FindStringSubmatch(line); m != nil {
		return Element{Kind: ElementSceneMarker, Text: line, Location: strings.TrimSpace(m[1])}, true
	}
	return Element{}, false
}

// classifyCue recognises an upper-case known name standing alone on a line.
// Parentheticals other than extensions are returned as character actions.
func classifyCue(line string, names *nameIndex) (Element, []Element, bool) {
	body := strings.TrimSpace(strings.TrimSuffix(line, ":"))
	var extension string
	for _, m := range extensionPattern.FindAllStringSubmatch(body, -1) {
		if extension == "" {
			extension = strings.ToUpper(strings.Join(strings.Fields(m[1]), ""))
		}
	}
	body = extensionPattern.ReplaceAllString(body, " ")
	var attached []string
	for _, m := range parenPattern.FindAllStringSubmatch(body, -1) {
		if text := strings.TrimSpace(m[1]); text != "" {
			attached = append(attached, text)
		}
	}
	name := strings.TrimSpace(parenPattern.ReplaceAllString(body, " "))
	if name == "" || !isUpper(name) {
		return Element{}, nil, false
	}
	canonical, ok := names.lookup(name)
	if !ok {
		return Element{}, nil, false
	}
	cue := Element{Kind: ElementCharacterCue, Text: line, Character: canonical, Extension: extension}
	actions := make([]Element, 0, len(attached))
	for _, text := range attached {
		actions = append(actions, Element{Kind: ElementAction, Text: text, Character: canonical, Parenthetical: text})
	}
	return cue, actions, true
}

func classifySoundCue(line string) (Element, bool) {
	m := soundPattern.FindStringSubmatch(line)
	if m == nil {
		return Element{}, false
	}
	kind := SoundEffect
	if strings.EqualFold(m[1], "music") {
		kind = SoundMusic
	}
	return Element{Kind: ElementSoundCue, Text: strings.TrimSpace(m[2]), Cue: kind}, true
}

// speakerLine is a `NAME: text` line.
type speakerLine struct {
	name          string
	known         bool
	parenthetical string
	text          string
}

// classifySpeaker accepts known names in any case and unknown names only
// when written in upper case. An unknown name that is a shot term, as in
// "CLOSE-UP: Bob's hands", is left to the camera classifier.
func classifySpeaker(line string, names *nameIndex) (speakerLine, bool) {
	m := speakerPattern.FindStringSubmatch(line)
	if m == nil {
		return speakerLine{}, false
	}
	name := strings.TrimSpace(m[1])
	text := strings.TrimSpace(m[3])
	if text == "" {
		return speakerLine{}, false
	}
	out := speakerLine{parenthetical: strings.TrimSpace(m[2]), text: unquote(text)}
	if canonical, ok := names.lookup(name); ok {
		out.name, out.known = canonical, true
		return out, true
	}
	if isUpper(name) && len(strings.Fields(name)) <= 4 && !cameraPattern.MatchString(name) {
		out.name = name
		return out, true
	}
	return speakerLine{}, false
}

// inlinePart is either a run of prose or an inline dialogue, in line order.
type inlinePart struct {
	prose    string
	dialogue *speakerLine
}

// classifyInlineDialogue splits narrative text using `<Name> says: "<text>"`
// into prose and dialogue parts.
func classifyInlineDialogue(line string, names *nameIndex) ([]inlinePart, bool) {
	matches := inlineSaysPattern.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return nil, false
	}
	var parts []inlinePart
	prev := 0
	for _, m := range matches {
		prefix := strings.TrimSpace(line[prev:m[0]])
		var paren string
		if strings.HasSuffix(prefix, ")") {
			if open := strings.LastIndex(prefix, "("); open >= 0 {
				paren = strings.TrimSpace(prefix[open+1 : len(prefix)-1])
				prefix = strings.TrimSpace(prefix[:open])
			}
		}
		words := strings.Fields(prefix)
		d := speakerLine{parenthetical: paren, text: strings.TrimSpace(line[m[2]:m[3]])}
		start := len(words)
		if canonical, at, ok := names.suffixMatch(words); ok {
			d.name, d.known, start = canonical, true, at
		} else if len(words) > 0 {
			start = len(words) - 1
			d.name = trimWordPunct(words[start])
		}
		if before := strings.Join(words[:start], " "); hasAlnum(before) {
			parts = append(parts, inlinePart{prose: before})
		}
		parts = append(parts, inlinePart{dialogue: &d})
		prev = m[1]
	}
	if tail := strings.TrimSpace(line[prev:]); hasAlnum(tail) {
		parts = append(parts, inlinePart{prose: tail})
	}
	return parts, true
}

// classifyCamera lists every camera movement in the line. bare reports
// whether the line is nothing but a direction, such as "CLOSE-UP on Bob".
func classifyCamera(line string) (el Element, bare bool, ok bool) {
	matches := cameraPattern.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return Element{}, false, false
	}
	movements := make([]string, 0, len(matches))
	for _, m := range matches {
		movements = append(movements, cameraMovement(line[m[2]:m[3]]))
	}
	lead := strings.TrimSpace(line[:matches[0][0]])
	bare = lead == "" || cameraLeadPattern.MatchString(lead)
	return Element{Kind: ElementCameraDirection, Text: line, Movements: movements}, bare, true
}

func cameraMovement(token string) string {
	lower := strings.ToLower(token)
	switch {
	case strings.HasPrefix(lower, "zoom"):
		return "zoom"
	case strings.HasPrefix(lower, "pan"):
		return "pan"
	case strings.HasPrefix(lower, "cut"):
		return "cut to"
	case strings.HasPrefix(lower, "close"):
		return "close-up"
	case strings.HasPrefix(lower, "wide"):
		return "wide shot"
	case strings.HasPrefix(lower, "tracking"):
		return "tracking shot"
	default:
		return "follows"
	}
}

func classifyParenthetical(line string) (string, bool) {
	if len(line) < 2 || line[0] != '(' || line[len(line)-1] != ')' {
		return "", false
	}
	inner := line[1 : len(line)-1]
	if strings.ContainsAny(inner, "()") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

// attachedActions extracts "Name (action)" pairs from prose for known names.
func attachedActions(line string, names *nameIndex) []Element {
	var out []Element
	for _, m := range parenPattern.FindAllStringSubmatchIndex(line, -1) {
		text := strings.TrimSpace(line[m[2]:m[3]])
		if text == "" {
			continue
		}
		words := strings.Fields(line[:m[0]])
		if canonical, _, ok := names.suffixMatch(words); ok {
			out = append(out, Element{Kind: ElementAction, Text: text, Character: canonical, Parenthetical: text})
		}
	}
	return out
}

func looksLikeHeading(line string) bool {
	return headingLikePattern.MatchString(line)
}

func looksLikeCue(line string) bool {
	return shoutPattern.MatchString(line) && len(strings.Fields(line)) <= 4 && hasAlnum(line)
}
