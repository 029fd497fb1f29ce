package main

// DefaultBoard returns the stock 3x3 hunt. Synonyms cover the labels that
// common detection and classification models emit for each concept.
func DefaultBoard() Board {
	return Board{Concepts: []Concept{
		{Target: "flower", Synonyms: []string{"daisy", "sunflower", "vase", "flower", "bouquet", "rose", "tulip"}},
		{Target: "chair", Synonyms: []string{"chair", "couch", "sofa", "bench", "stool"}},
		{Target: "cup", Synonyms: []string{"cup", "mug", "wine glass", "teapot"}},
		{Target: "book", Synonyms: []string{"book", "notebook", "magazine", "comic book"}},
		{Target: "clock", Synonyms: []string{"clock", "watch", "stopwatch"}},
		{Target: "bottle", Synonyms: []string{"bottle", "flask", "jug"}},
		{Target: "laptop", Synonyms: []string{"laptop", "computer", "keyboard", "monitor"}},
		{Target: "phone", Synonyms: []string{"cell phone", "cellular telephone", "phone", "smartphone"}},
		{Target: "plant", Synonyms: []string{"potted plant", "plant", "pot", "cactus"}},
	}}
}
