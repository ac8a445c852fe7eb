package processing

func (k KeywordSet) Has(word string) bool {
	_, ok := k[word]
	return ok
}

func (k KeywordSet) Words() []string {
	out := make([]string, 0, len(k))
	for w := range k {
		out = append(out, w)
	}
	return out
}

func (n *Normalizer) MinLength() int {
	return n.minLength
}

func IsStopword(word string) bool {
	_, ok := turkishStopwords[word]
	return ok
}
