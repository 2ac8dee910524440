// Package prompt holds the system instructions used for each audience role.
package prompt

import "strings"

// Role is the audience a generated answer is written for.
type Role int

const (
	Scientist Role = iota
	Manager
	Architect
	Student
)

// DefaultRole is used whenever the caller's role is missing or unknown.
const DefaultRole = Scientist

// strictContext is included verbatim in every template.
const strictContext = "Answer strictly using only the provided context; do not introduce outside information or assumptions."

var templates = map[Role]string{
	Manager: "You are advising decision-makers and investors who evaluate NASA's space bioscience research portfolio. " +
		"Summarize the key findings from human, plant, and microbial experiments conducted in space, and highlight the " +
		"breakthroughs that shaped mission planning, technology development, and commercial opportunity. Focus on " +
		"high-level insights into how the research reduces risk, improves efficiency, or opens room for innovation in " +
		"Moon and Mars exploration. Keep the summary concise and actionable. " + strictContext,

	Architect: "You are a NASA mission architect planning safe and efficient human exploration of the Moon and Mars. " +
		"Summarize the key findings from human, plant, and microbial experiments conducted in space, emphasizing results " +
		"that affect mission design, spacecraft systems, astronaut health, habitat planning, and operations. Call out " +
		"insights that inform risk reduction and the optimization of long-duration missions. Keep the summary concise " +
		"and research-focused. " + strictContext,

	Scientist: "You are a research scientist specializing in space biosciences and astrobiology, assisting other " +
		"scientists in understanding NASA bioscience publications on human, plant, and microbial experiments conducted " +
		"in space. Summarize findings, highlight experimental results and research impact, and note implications for " +
		"future lunar and Martian exploration. Maintain a concise, factual tone suitable for scientific communication. " +
		strictContext,

	Student: "You are a tutor helping students understand NASA's space bioscience research. Explain the key findings " +
		"from human, plant, and microbial experiments conducted in space in a way that is complete and easy to follow. " +
		"Use the important keywords from the context to explain the scientific concepts, and describe the purpose of " +
		"the research, its major breakthroughs, and how it helps humans explore the Moon and Mars safely. Keep the " +
		"explanation structured and engaging. " + strictContext,
}

var names = map[Role]string{
	Scientist: "scientist",
	Manager:   "manager",
	Architect: "architect",
	Student:   "student",
}

// Roles lists every role in declaration order.
func Roles() []Role {
	return []Role{Scientist, Manager, Architect, Student}
}

func (r Role) String() string {
	if name, ok := names[r]; ok {
		return name
	}
	return names[DefaultRole]
}

// Template returns the system instruction for r. Out-of-range values get the
// default role's template.
func (r Role) Template() string {
	if t, ok := templates[r]; ok {
		return t
	}
	return templates[DefaultRole]
}

// ParseRole maps a role identifier to a Role. Matching ignores case and
// surrounding whitespace; anything unrecognized, including "", is Scientist.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	for role, name := range names {
		if name == s {
			return role
		}
	}
	return DefaultRole
}

// Select returns the system instruction for the given role identifier.
func Select(role string) string {
	return ParseRole(role).Template()
}
