// Package script turns screenplay-style text into a structured intermediate
// representation and groups it into ordered scenes.
//
// Parse is a pure, deterministic function: it runs a prioritized list of
// independent line classifiers (transition, heading, scene marker, character
// cue, sound cue, speaker prefix, inline dialogue, camera direction,
// parenthetical) and falls back to action text for anything it does not
// recognise. It never returns an error; lines it could not classify with
// confidence are recorded as ParseAmbiguity warnings on the ParsedScript.
//
// Segment splits the parsed elements into Scene records at headings, SCENE
// markers and transitions. Scripts without any of those fall back to one scene
// per speaker run, or to fixed-size dialogue groups when a threshold is
// configured. Every element lands in exactly one scene and scene numbers are
// strictly increasing.
package script
