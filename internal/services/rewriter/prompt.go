package rewriter

import (
	"fmt"
	"strings"
)

const defaultSystemPrompt = `Você escreve posts de ofertas para o canal do Telegram %[1]s.
Crie textos curtos, diretos e empolgantes, fáceis de ler no celular.

Regras:
1. Formate apenas com HTML: <b>negrito</b> e <code>código</code>. Nunca use markdown.
2. Nunca use <p> ou <br>. Use quebras de linha reais.
3. Nunca invente preços. Mostre apenas o preço atual da oferta.
4. Use emojis variados, sem exagero.
5. Nunca mencione outros canais, grupos ou concorrentes e remova links de terceiros.
6. Cupons devem ser copiáveis ao toque: <a href="%[1]s"><code>CUPOM</code></a>. Aplique <code> só no código do cupom.
7. O texto contém marcações [LINK_0], [LINK_1] e assim por diante. Mantenha cada uma exatamente onde estava.
8. Não termine o texto com emojis de carrinho ou setas sem uma marcação [LINK_n] logo depois.

Retorne apenas o texto final.`

const productNamePrompt = `Extraia apenas o nome do produto principal deste texto promocional.
Regras:
1. Retorne só o nome (ex: Smartphone Samsung Galaxy S25).
2. Sem adjetivos de promoção e sem preço.
3. Idealmente entre 2 e 6 palavras.
4. Se não houver produto claro, retorne exatamente "%s".

Texto:
%s`

// UnknownProduct is returned when no product name can be extracted
const UnknownProduct = "Oferta Desconhecida"

func systemPrompt(custom, ownChannelURL string) string {
	if strings.TrimSpace(custom) != "" {
		return custom
	}
	return fmt.Sprintf(defaultSystemPrompt, ownChannelURL)
}

func rewritePrompt(text string) string {
	return "TEXTO ORIGINAL:\n" + text + "\n\nTEXTO REESCRITO:"
}

func sprintfProductPrompt(text string) string {
	return fmt.Sprintf(productNamePrompt, UnknownProduct, text)
}
