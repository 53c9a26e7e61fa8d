package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/F-kaue/WorkflowApp-sub000/internal/routing"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

const systemPromptTemplate = `Você é um analista que redige documentos de solicitação de serviço.
Responda em português, em Markdown, com as seções:
1. Título
2. Resumo da solicitação
3. Passos de execução
4. Riscos e cuidados
5. Responsável

A área responsável é %s. Inclua exatamente a linha "%s".`

// BuildPrompt returns the system and user prompts for a generation request.
func BuildPrompt(req models.GenerationRequest, d routing.Decision) (system, prompt string) {
	system = fmt.Sprintf(systemPromptTemplate, d.Area, d.Line())

	var b strings.Builder
	fmt.Fprintf(&b, "Organização solicitante: %s\n", strings.TrimSpace(req.Scope))
	if len(d.Matched) > 0 {
		fmt.Fprintf(&b, "Palavras-chave identificadas: %s\n", strings.Join(d.Matched, ", "))
	}
	b.WriteString("\nSolicitação:\n")
	b.WriteString(strings.TrimSpace(req.RequestText))
	return system, b.String()
}

// truncateString cuts s to at most maxChars characters without splitting a rune.
func truncateString(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
