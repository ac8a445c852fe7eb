package processing

// High-frequency Turkish function words: conjunctions, pronouns, question
// particles, postpositions and common verbs.
var turkishStopwords = map[string]struct{}{
	"ve": {}, "bir": {}, "bu": {}, "da": {}, "de": {}, "için": {}, "olan": {},
	"ile": {}, "gibi": {}, "çok": {}, "daha": {}, "en": {}, "şu": {}, "o": {},
	"ben": {}, "sen": {}, "biz": {}, "siz": {}, "onlar": {}, "ki": {},
	"mi": {}, "mı": {}, "mu": {}, "mü": {}, "ne": {}, "nasıl": {}, "niçin": {},
	"neden": {}, "hangi": {}, "kim": {}, "kime": {}, "kimin": {}, "kimde": {},
	"kimden": {}, "kimi": {}, "kimle": {}, "kiminle": {}, "nere": {},
	"nerede": {}, "nereden": {}, "nereye": {}, "ama": {}, "ancak": {},
	"fakat": {}, "lakin": {}, "yoksa": {}, "veya": {}, "hem": {}, "gerek": {},
	"sadece": {}, "yalnız": {}, "bile": {}, "dahi": {}, "göre": {}, "karşı": {},
	"doğru": {}, "kadar": {}, "sonra": {}, "önce": {}, "önceki": {},
	"sonraki": {}, "beri": {}, "den": {}, "dan": {}, "e": {}, "a": {}, "i": {},
	"u": {}, "ü": {}, "ı": {}, "ö": {}, "var": {}, "yok": {}, "olmak": {},
	"etmek": {}, "yapmak": {}, "gelmek": {}, "gitmek": {}, "almak": {},
	"vermek": {}, "görmek": {}, "bilmek": {}, "demek": {}, "söylemek": {},
}
