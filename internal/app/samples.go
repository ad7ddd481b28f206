package app

// SpellingSamples are misspelled texts for inspecting the spelling corrector.
var SpellingSamples = []string{
	"I haate thos poeple",
	"They are stoopid and dum fakfakfak",
	"Evryone desrves respct, Fakhar",
}

// DemoTexts are unseen texts for a quick check of a trained model.
var DemoTexts = []string{
	"I really enjoy learning new things every day",
	"Those people are disgusting and should be removed",
	"Let's celebrate our differences and unite as one",
}
