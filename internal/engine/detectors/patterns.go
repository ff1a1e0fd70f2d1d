package detectors

import (
	"regexp"

	"github.com/triage-ai/constitutional/internal/engine"
)

// --- Ubuntu principles ---

// principleLexicon is the keyword data for one Ubuntu principle. Keywords and
// phrases are matched case-insensitively on whole words.
type principleLexicon struct {
	keywords    []string
	highImpact  []string // weighted 1.5x
	negative    []string // -10 each
	reinforcing []string // +5 each
}

var collectiveBenefitLexicon = principleLexicon{
	keywords: []string{
		"benefit", "together", "shared", "collaboration", "collaborate", "cooperation",
		"cooperative", "mutual", "society", "we", "us", "our", "teamwork", "support", "help",
		"everyone",
	},
	highImpact: []string{"community", "collective", "ubuntu", "common good", "humanity", "solidarity"},
	negative: []string{
		"keep to yourself", "only for me", "every man for himself", "not my problem",
		"look out for number one", "at the expense of others",
	},
	reinforcing: []string{
		"work together", "for the community", "benefit everyone", "shared success",
		"collective benefit", "help each other",
	},
}

var knowledgeSharingLexicon = principleLexicon{
	keywords: []string{
		"sharing", "share", "learn", "learning", "understanding", "insight", "explain",
		"explanation", "resource", "resources", "information", "open", "philosophy", "guide",
		"research", "study",
	},
	highImpact: []string{"knowledge", "wisdom", "education", "educational", "teach", "teaching", "mentor"},
	negative: []string{
		"keep it secret", "don't share", "do not share", "need to know basis",
		"figure it out yourself", "not for you to know",
	},
	reinforcing: []string{
		"sharing knowledge", "share knowledge", "everyone can learn", "learn together",
		"open access", "freely available",
	},
}

var inclusiveDesignLexicon = principleLexicon{
	keywords: []string{
		"everyone", "diverse", "diversity", "equal", "equality", "fair", "fairness", "welcome",
		"welcoming", "regardless", "belonging", "respect", "inclusion", "representation",
	},
	highImpact: []string{"all people", "inclusive", "accessible", "accessibility", "equity"},
	negative: []string{
		"not for people like", "those people", "exclude them", "not welcome",
		"only for men", "only for women",
	},
	reinforcing: []string{
		"for all", "everyone can", "regardless of", "all backgrounds", "all abilities",
	},
}

// --- Bias ---

// biasPattern is a compiled bias pattern with its fixed severity class.
type biasPattern struct {
	re       *regexp.Regexp
	severity engine.Severity
}

var biasPatterns = map[engine.BiasType][]biasPattern{
	engine.BiasGender: {
		{regexp.MustCompile(`(?i)\b(?:women|girls|females?)\s+(?:are|is)\s+(?:too\s+|naturally\s+|just\s+)?(?:emotional|irrational|weak|hysterical|inferior|bad at \w+)`), engine.SeverityHigh},
		{regexp.MustCompile(`(?i)\b(?:men|boys)\s+(?:don't|do not|can't|cannot|shouldn't)\s+(?:cry|cook|nurture|show emotions?)\b`), engine.SeverityMedium},
		{regexp.MustCompile(`(?i)\b(?:women|girls|wives)\s+(?:belong|should stay)\s+(?:in|at)\s+(?:the\s+)?(?:kitchen|home)\b`), engine.SeverityCritical},
		{regexp.MustCompile(`(?i)\b(?:man up|like a girl)\b`), engine.SeverityLow},
	},
	engine.BiasRace: {
		{regexp.MustCompile(`(?i)\b(?:all|those|these)\s+(?:black|white|asian|hispanic|latino|arab|african)\s+(?:people|folks|guys)\s+(?:are|is)\b`), engine.SeverityHigh},
		{regexp.MustCompile(`(?i)\b(?:black|white|asian|hispanic|latino|arab)\s+people\s+are\s+(?:naturally|inherently|genetically)\s+\w+`), engine.SeverityCritical},
		{regexp.MustCompile(`(?i)\b(?:racially|genetically)\s+(?:inferior|superior)\b`), engine.SeverityCritical},
	},
	engine.BiasAge: {
		{regexp.MustCompile(`(?i)\b(?:old|older|elderly)\s+(?:people|workers|employees|folks)\s+(?:are|can't|cannot|don't)\s+(?:too\s+)?(?:slow|learn|adapt|useless|incompetent|understand)\w*`), engine.SeverityMedium},
		{regexp.MustCompile(`(?i)\b(?:millennials|boomers|young people|teenagers)\s+are\s+(?:all\s+)?(?:lazy|entitled|irresponsible|useless|naive)\b`), engine.SeverityMedium},
		{regexp.MustCompile(`(?i)\btoo old to\s+\w+`), engine.SeverityLow},
	},
	engine.BiasReligion: {
		{regexp.MustCompile(`(?i)\b(?:all\s+)?(?:muslims|christians|jews|hindus|buddhists|atheists|sikhs)\s+are\s+(?:all\s+)?(?:terrorists|extremists|greedy|evil|violent|immoral)\b`), engine.SeverityCritical},
		{regexp.MustCompile(`(?i)\b(?:godless|heathens?|infidels?)\b`), engine.SeverityMedium},
	},
	engine.BiasDisability: {
		{regexp.MustCompile(`(?i)\b(?:retarded|crippled|spaz|lame-brained)\b`), engine.SeverityHigh},
		{regexp.MustCompile(`(?i)\b(?:disabled|handicapped)\s+people\s+(?:are|can't|cannot)\s+\w+`), engine.SeverityMedium},
		{regexp.MustCompile(`(?i)\b(?:confined to a wheelchair|wheelchair[- ]bound|suffers from autism)\b`), engine.SeverityLow},
	},
	engine.BiasSocioeconomic: {
		{regexp.MustCompile(`(?i)\b(?:poor|low[- ]income|homeless|welfare)\s+people\s+are\s+(?:just\s+)?(?:lazy|stupid|criminals?|worthless)\b`), engine.SeverityHigh},
		{regexp.MustCompile(`(?i)\b(?:trailer trash|white trash|ghetto people)\b`), engine.SeverityMedium},
	},
	engine.BiasNationality: {
		{regexp.MustCompile(`(?i)\b(?:all\s+)?(?:mexicans|immigrants|chinese|russians|americans|indians|foreigners|refugees)\s+are\s+(?:all\s+)?(?:lazy|criminals?|thieves|stupid|dirty|illegal|dangerous)\b`), engine.SeverityHigh},
		{regexp.MustCompile(`(?i)\bgo back to (?:your|their) (?:own )?country\b`), engine.SeverityCritical},
	},
}

// gendered job titles and their neutral replacements. Keys are lowercase.
var neutralTerms = map[string]string{
	"chairman":    "chairperson",
	"chairmen":    "chairpersons",
	"fireman":     "firefighter",
	"firemen":     "firefighters",
	"policeman":   "police officer",
	"policemen":   "police officers",
	"mailman":     "mail carrier",
	"salesman":    "salesperson",
	"salesmen":    "salespeople",
	"businessman": "businessperson",
	"businessmen": "businesspeople",
	"stewardess":  "flight attendant",
	"waitress":    "server",
	"cameraman":   "camera operator",
	"spokesman":   "spokesperson",
	"mankind":     "humankind",
	"manpower":    "workforce",
}

var genderedTitleRe = regexp.MustCompile(`(?i)\b(?:chairm[ae]n|firem[ae]n|policem[ae]n|mailman|salesm[ae]n|businessm[ae]n|stewardess|waitress|cameraman|spokesman|mankind|manpower)\b`)

var (
	professionRe     = regexp.MustCompile(`(?i)\b(?:nurse|engineer|doctor|secretary|ceo|pilot|programmer|teacher|scientist|surgeon|receptionist|developer|manager|lawyer|mechanic)s?\b`)
	genderPronounRe  = regexp.MustCompile(`(?i)\b(?:he|she|his|her|him|hers)\b`)
	traitAdjectiveRe = regexp.MustCompile(`(?i)\b(?:lazy|emotional|violent|stupid|greedy|weak|dangerous|criminal|inferior|dirty|aggressive|submissive|irrational|untrustworthy)\b`)
)

// demographicTerms maps group nouns to the bias type they imply.
var demographicTerms = []struct {
	re   *regexp.Regexp
	kind engine.BiasType
}{
	{regexp.MustCompile(`(?i)\b(?:women|men|girls|boys|females|males)\b`), engine.BiasGender},
	{regexp.MustCompile(`(?i)\b(?:black|white|asian|hispanic|latino|arab)\s+(?:people|men|women|folks)\b`), engine.BiasRace},
	{regexp.MustCompile(`(?i)\b(?:elderly|old people|seniors|millennials|boomers|teenagers)\b`), engine.BiasAge},
	{regexp.MustCompile(`(?i)\b(?:muslims|christians|jews|hindus|atheists|buddhists)\b`), engine.BiasReligion},
	{regexp.MustCompile(`(?i)\b(?:disabled people|the disabled|handicapped)\b`), engine.BiasDisability},
	{regexp.MustCompile(`(?i)\b(?:poor people|the poor|homeless people|low-income people)\b`), engine.BiasSocioeconomic},
	{regexp.MustCompile(`(?i)\b(?:immigrants|foreigners|refugees|mexicans)\b`), engine.BiasNationality},
}

var exclusionaryPatterns = []struct {
	re       *regexp.Regexp
	kind     engine.BiasType
	severity engine.Severity
}{
	{regexp.MustCompile(`(?i)\bno (?:women|girls) (?:allowed|need apply)\b`), engine.BiasGender, engine.SeverityHigh},
	{regexp.MustCompile(`(?i)\bno (?:foreigners|immigrants) (?:allowed|need apply)\b`), engine.BiasNationality, engine.SeverityHigh},
	{regexp.MustCompile(`(?i)\b(?:you people|your kind|people like you)\b`), engine.BiasRace, engine.SeverityMedium},
	{regexp.MustCompile(`(?i)\bnormal people\b`), engine.BiasDisability, engine.SeverityLow},
}

// --- PII ---

// piiPattern holds one compiled pattern per PII type. When the pattern has a
// group named "value", only that group is reported and redacted.
type piiPattern struct {
	kind       engine.PIIType
	re         *regexp.Regexp
	confidence float64
}

var piiPatterns = []piiPattern{
	{engine.PIIEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), 0.95},
	{engine.PIISSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), 0.95},
	{engine.PIICreditCard, regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b|\b3[47]\d{2}[- ]?\d{6}[- ]?\d{5}\b`), 0.9},
	{engine.PIIIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`), 0.9},
	{engine.PIIPhone, regexp.MustCompile(`(?:\+1[-.\s]?)?(?:\(\d{3}\)\s?|\b\d{3}[-.\s])?\b\d{3}[-.\s]\d{4}\b`), 0.85},
	{engine.PIIDateOfBirth, regexp.MustCompile(`(?i)\b(?:dob|date of birth|born on|birthday)\s*(?:is|:)?\s*(?P<value>\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.? \d{1,2},? \d{4})`), 0.8},
	{engine.PIIAddress, regexp.MustCompile(`\b\d{1,5}\s+(?:[A-Z][a-z]+\s){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way|Place|Pl)\b\.?`), 0.7},
	{engine.PIIName, regexp.MustCompile(`(?:\b(?:[Mm]y name is|[Nn]ame:)|\b(?:Mr|Mrs|Ms|Dr|Prof)\.?)\s+(?P<value>[A-Z][a-z]+(?:\s[A-Z][a-z]+)?)`), 0.6},
}

// --- Harm ---

// harmCategory is the pattern set and severity constant for one harm type.
type harmCategory struct {
	kind     engine.HarmType
	severity float64
	patterns []*regexp.Regexp
}

var harmCategories = []harmCategory{
	{engine.HarmViolence, 8, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:harm|hurt|injure|attack|assault|kill|murder|stab|shoot|beat up|poison)\s+(?:someone|somebody|people|him|her|them|a person|others|my \w+)\b`),
		regexp.MustCompile(`(?i)\bcause (?:serious |physical )?(?:harm|injury|pain)\b`),
		regexp.MustCompile(`(?i)\bhow to (?:kill|murder|hurt|harm|attack|poison|strangle)\b`),
		regexp.MustCompile(`(?i)\b(?:weapon|gun|knife)\s+to\s+(?:kill|hurt|attack)\b`),
	}},
	{engine.HarmHateSpeech, 8, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:exterminate|eradicate|wipe out)\s+(?:all\s+)?(?:the\s+)?(?:jews|muslims|christians|immigrants|foreigners|gays|blacks|whites|minorities)\b`),
		regexp.MustCompile(`(?i)\b(?:subhuman|inferior race|vermin|untermensch)\b`),
		regexp.MustCompile(`(?i)\bi hate (?:all\s+)?(?:immigrants|muslims|jews|gays|women|blacks|christians|foreigners)\b`),
	}},
	{engine.HarmSelfHarm, 10, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:kill|hurt|harm|cut)\s+(?:myself|yourself|themselves|himself|herself)\b`),
		regexp.MustCompile(`(?i)\b(?:suicide|suicidal|self[- ]harm|end my life|end it all|want to die)\b`),
	}},
	{engine.HarmIllegalActivity, 7, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:make|cook|synthesize|manufacture)\s+(?:meth|methamphetamine|cocaine|heroin|fentanyl|illegal drugs)\b`),
		regexp.MustCompile(`(?i)\b(?:launder(?:ing)? money|money laundering|steal (?:a car|credit cards?|identities)|shoplifting|hack(?:ing)? into|counterfeit (?:money|bills)|evade taxes|tax evasion)\b`),
		regexp.MustCompile(`(?i)\bhow to (?:steal|rob|burgle|break into)\b`),
	}},
	{engine.HarmMisinformation, 6, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:vaccines? causes? autism|the earth is flat|moon landing was (?:fake|faked|staged)|covid is a hoax|climate change is a hoax|5g causes)\b`),
		regexp.MustCompile(`(?i)\b(?:miracle cure|cures? cancer overnight|doctors don't want you to know)\b`),
	}},
	{engine.HarmExploitation, 7, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:child (?:porn|pornography|exploitation)|groom(?:ing)? (?:a )?(?:child|minor|kid)s?|human trafficking|sextortion)\b`),
		regexp.MustCompile(`(?i)\b(?:exploit|traffic)\s+(?:children|minors|vulnerable people|women)\b`),
	}},
	{engine.HarmHarassment, 7, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:dox|doxx|stalk|harass|threaten|intimidate)(?:ing)?\s+(?:someone|him|her|them|people|my (?:ex|boss|neighbor|coworker))\b`),
		regexp.MustCompile(`(?i)\b(?:you(?:'re| are) (?:worthless|pathetic|an idiot)|nobody (?:likes|loves) you)\b`),
	}},
	{engine.HarmDangerousContent, 10, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:build|make|assemble|construct)\s+(?:a\s+)?(?:bomb|explosive|pipe bomb|molotov cocktail|bioweapon|chemical weapon|nerve agent)\b`),
		regexp.MustCompile(`(?i)\b(?:mix(?:ing)?\s+bleach\s+and\s+ammonia|synthesize\s+(?:sarin|ricin|anthrax))\b`),
	}},
}
