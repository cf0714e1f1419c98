package bot

import "fmt"

// catalog holds user-facing reply templates per language. Handlers
// never hardcode reply text; everything the user sees goes through
// msg so both languages stay in sync.
var catalog = map[string]map[string]string{
	"en": {
		"rate_limited":       "You've used up today's free messages. Subscribe to keep chatting, or come back tomorrow.",
		"didnt_understand":   "I didn't quite get that. I can check prices, set alerts, track your portfolio and explain crypto concepts — try asking about one of those.",
		"ai_unconfigured":    "The assistant brain is not configured on this server. Please contact the operator.",
		"ai_transient":       "The assistant is having trouble right now. Please try again in a minute.",
		"generic_error":      "Something went wrong on my side. Please try again.",
		"chat_fallback":      "I'm here! Ask me about coin prices, alerts or your portfolio.",
		"hint":               "Tip: you can say things like \"price of btc\", \"alert me when eth hits 5000\" or \"track sol\".",
		"crypto_not_found":   "I couldn't find any coins matching %q.",
		"crypto_missing":     "Couldn't find: %s.",
		"crypto_line":        "*%s*: %.2f USD (%+.2f%% 24h)",
		"alert_created":      "Done. I'll ping you when *%s* goes %s %.2f USD.",
		"alert_invalid":      "I couldn't parse that alert. Try \"alert me when btc hits 120000\".",
		"alert_unknown_coin": "I don't know the coin %q, so I can't set an alert for it.",
		"alerts_none":        "You have no active alerts.",
		"alerts_header":      "Your active alerts:",
		"alerts_line":        "- *%s* %s %.2f USD",
		"alerts_deleted":     "Removed %d alert(s) for *%s*.",
		"alerts_none_sym":    "No active alerts for *%s*.",
		"track_added":        "Now tracking *%s* in your portfolio.",
		"track_limit":        "The free plan tracks up to %d coins. Subscribe to track more.",
		"track_removed":      "Stopped tracking *%s*.",
		"track_not_tracked":  "*%s* wasn't in your portfolio.",
		"track_unknown":      "I don't know the coin %q.",
		"portfolio_empty":    "Your portfolio is empty. Say \"track btc\" to start.",
		"portfolio_header":   "Your portfolio:",
		"analysis_line":      "*%s* trades at %.2f USD, %+.2f%% over 24h.",
		"where_to_buy":       "*%s* is listed on major exchanges such as Binance, Coinbase and Kraken. Always verify the pair before trading.",
		"premarket_gated":    "Pre-market scanning is a subscriber feature. Say \"subscription\" to learn more.",
		"premarket_header":   "Coins the market is moving into right now:",
		"premarket_empty":    "Nothing notable in pre-market right now. I'll have more once the market picks a direction.",
		"lang_set":           "Done — I'll reply in English from now on.",
		"lang_invalid":       "I can speak English (en) and Russian (ru). Say \"switch to russian\" or \"switch to english\".",
		"edu_fallback":       "A good question about %s! In short: it's a crypto concept worth reading up on — ask me something more specific and I'll dig in.",
		"sub_active":         "Your %s subscription is active. Next renewal: %s.",
		"sub_none":           "You don't have an active subscription. It unlocks unlimited messages, a bigger portfolio and pre-market scans.",
		"help":               "I can: check coin prices, analyse tokens, set price alerts, manage your portfolio, explain crypto concepts and just chat. Ask away.",
		"alert_fired":        "🔔 *%s* has crossed your %.2f USD threshold (now %.2f USD).",
		"sub_granted":        "Your subscription is active — welcome back to the private channel!",
		"sub_revoked":        "Your subscription has lapsed, so channel access was paused. Renew any time to come back.",
	},
	"ru": {
		"rate_limited":       "Бесплатные сообщения на сегодня закончились. Оформите подписку или возвращайтесь завтра.",
		"didnt_understand":   "Я не совсем понял. Я умею показывать цены, ставить алерты, вести портфель и объяснять крипто-термины — спросите про что-то из этого.",
		"ai_unconfigured":    "Мозг ассистента не настроен на этом сервере. Свяжитесь с оператором.",
		"ai_transient":       "Ассистенту сейчас нездоровится. Попробуйте через минуту.",
		"generic_error":      "Что-то пошло не так. Попробуйте ещё раз.",
		"chat_fallback":      "Я тут! Спросите про цены монет, алерты или ваш портфель.",
		"hint":               "Подсказка: можно писать «цена btc», «алерт когда eth будет 5000» или «следи за sol».",
		"crypto_not_found":   "Не нашёл монет по запросу %q.",
		"crypto_missing":     "Не нашёл: %s.",
		"crypto_line":        "*%s*: %.2f USD (%+.2f%% за 24ч)",
		"alert_created":      "Готово. Сообщу, когда *%s* будет %s %.2f USD.",
		"alert_invalid":      "Не смог разобрать алерт. Попробуйте «алерт когда btc будет 120000».",
		"alert_unknown_coin": "Не знаю монету %q, алерт не поставить.",
		"alerts_none":        "У вас нет активных алертов.",
		"alerts_header":      "Ваши активные алерты:",
		"alerts_line":        "- *%s* %s %.2f USD",
		"alerts_deleted":     "Удалил %d алерт(ов) по *%s*.",
		"alerts_none_sym":    "Нет активных алертов по *%s*.",
		"track_added":        "Теперь слежу за *%s* в вашем портфеле.",
		"track_limit":        "Бесплатный план — до %d монет. Подписка снимает лимит.",
		"track_removed":      "Больше не слежу за *%s*.",
		"track_not_tracked":  "*%s* не было в портфеле.",
		"track_unknown":      "Не знаю монету %q.",
		"portfolio_empty":    "Портфель пуст. Напишите «следи за btc», чтобы начать.",
		"portfolio_header":   "Ваш портфель:",
		"analysis_line":      "*%s* торгуется по %.2f USD, %+.2f%% за 24ч.",
		"where_to_buy":       "*%s* торгуется на крупных биржах: Binance, Coinbase, Kraken. Проверяйте пару перед сделкой.",
		"premarket_gated":    "Премаркет-сканер доступен по подписке. Напишите «подписка», чтобы узнать больше.",
		"premarket_header":   "Монеты, в которые сейчас заходит рынок:",
		"premarket_empty":    "Сейчас в премаркете тихо. Появится движение — расскажу.",
		"lang_set":           "Готово — теперь отвечаю по-русски.",
		"lang_invalid":       "Я говорю по-английски (en) и по-русски (ru). Напишите «перейди на русский» или «switch to english».",
		"edu_fallback":       "Хороший вопрос про %s! Если коротко — это важная крипто-тема; спросите конкретнее, и я разберу подробнее.",
		"sub_active":         "Ваша подписка %s активна. Следующее продление: %s.",
		"sub_none":           "Активной подписки нет. Она снимает лимит сообщений, расширяет портфель и открывает премаркет.",
		"help":               "Я умею: показывать цены, анализировать токены, ставить алерты, вести портфель, объяснять крипто-термины и просто болтать.",
		"alert_fired":        "🔔 *%s* пересёк ваш порог %.2f USD (сейчас %.2f USD).",
		"sub_granted":        "Подписка активна — добро пожаловать обратно в закрытый канал!",
		"sub_revoked":        "Подписка истекла, доступ к каналу приостановлен. Продлите, чтобы вернуться.",
	},
}

// Msg renders a catalog entry for the given language, falling back to
// English for unknown languages or missing keys.
func Msg(lang, key string, args ...any) string {
	m, ok := catalog[lang]
	if !ok {
		m = catalog["en"]
	}
	tmpl, ok := m[key]
	if !ok {
		tmpl, ok = catalog["en"][key]
		if !ok {
			return key
		}
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
