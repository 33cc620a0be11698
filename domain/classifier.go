package domain

import "strings"

// WordClass describes the lexical categories a word may belong to.
type WordClass struct {
	IsVerb      bool
	IsNoun      bool
	IsAgentNoun bool
}

// WordClassifier classifies single lowercase words. Implementations may be
// backed by a lexical database; tests stub it.
type WordClassifier interface {
	Classify(word string) WordClass
}

// ClassifierFunc adapts a function to WordClassifier.
type ClassifierFunc func(word string) WordClass

// Classify implements WordClassifier.
func (f ClassifierFunc) Classify(word string) WordClass { return f(word) }

// commonVerbs are verbs that show up as identifier prefixes.
var commonVerbs = map[string]bool{
	"add": true, "apply": true, "build": true, "calculate": true, "check": true,
	"clean": true, "compute": true, "convert": true, "create": true, "delete": true,
	"dispatch": true, "execute": true, "fetch": true, "filter": true, "find": true,
	"format": true, "generate": true, "get": true, "handle": true, "load": true,
	"make": true, "manage": true, "merge": true, "parse": true, "process": true,
	"read": true, "remove": true, "render": true, "resolve": true, "run": true,
	"save": true, "scan": true, "send": true, "set": true, "sort": true,
	"store": true, "transform": true, "update": true, "validate": true, "write": true,
	"control": true, "help": true, "report": true, "order": true, "serve": true,
}

// agentExceptions end in -er/-or but are not agent nouns.
var agentExceptions = map[string]bool{
	"order": true, "user": true, "customer": true, "member": true, "number": true,
	"letter": true, "paper": true, "folder": true, "header": true, "footer": true,
	"filter": true, "layer": true, "vector": true, "error": true, "color": true,
	"author": true, "owner": true, "player": true, "partner": true, "counter": true,
	"buffer": true, "container": true, "register": true, "chapter": true, "character": true,
	"parameter": true, "master": true, "cluster": true, "tier": true, "water": true,
	"power": true, "cover": true, "answer": true, "matter": true, "anchor": true,
	"floor": true, "door": true, "minor": true, "major": true, "mirror": true,
	"identifier": true, "tenor": true, "sensor": true, "meter": true, "monitor": true,
}

// agentSuffixes mark nouns formed from a verb naming whoever performs it.
var agentSuffixes = []string{"izer", "iser", "er", "or"}

// SuffixClassifier is the built-in classifier: a small verb lexicon plus
// agent-noun suffix rules. It needs no external dictionary.
type SuffixClassifier struct{}

// Classify implements WordClassifier.
func (SuffixClassifier) Classify(word string) WordClass {
	w := strings.ToLower(word)
	class := WordClass{IsVerb: commonVerbs[w]}
	if !class.IsVerb {
		class.IsNoun = true
	}
	if agentExceptions[w] || len(w) < 5 {
		return class
	}
	for _, suffix := range agentSuffixes {
		if !strings.HasSuffix(w, suffix) {
			continue
		}
		stem := strings.TrimSuffix(w, suffix)
		if commonVerbs[stem] || commonVerbs[stem+"e"] || len(stem) >= 4 {
			class.IsAgentNoun = true
			class.IsNoun = true
		}
		break
	}
	return class
}
