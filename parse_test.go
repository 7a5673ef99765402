package pubmed

import (
	"strings"
	"testing"
)

const testFullArticle = `<PubmedArticleSet>
<PubmedArticle>
    <MedlineCitation Status="MEDLINE">
        <PMID Version="1">12345678</PMID>
        <Article PubModel="Print">
            <Journal>
                <Title>Nature Medicine</Title>
                <JournalIssue CitedMedium="Internet">
                    <PubDate>
                        <Year>2023</Year>
                        <Month>Mar</Month>
                        <Day>5</Day>
                    </PubDate>
                </JournalIssue>
            </Journal>
            <ArticleTitle>Efficacy of <i>CRISPR</i>-Cas9 in solid tumors</ArticleTitle>
            <Abstract>
                <AbstractText Label="BACKGROUND">Gene editing is promising.</AbstractText>
                <AbstractText Label="RESULTS">Tumors shrank.</AbstractText>
            </Abstract>
            <AuthorList CompleteYN="Y">
                <Author ValidYN="Y">
                    <LastName>Smith</LastName>
                    <ForeName>Jane A</ForeName>
                </Author>
                <Author ValidYN="Y">
                    <LastName>Doe</LastName>
                </Author>
                <Author ValidYN="Y">
                    <CollectiveName>The Consortium</CollectiveName>
                </Author>
            </AuthorList>
        </Article>
    </MedlineCitation>
    <PubmedData>
        <ArticleIdList>
            <ArticleId IdType="pubmed">12345678</ArticleId>
            <ArticleId IdType="doi">10.1038/nm.1234</ArticleId>
            <ArticleId IdType="pmc">PMC7654321</ArticleId>
        </ArticleIdList>
    </PubmedData>
</PubmedArticle>
</PubmedArticleSet>`

func TestParseArticlesFullRecord(t *testing.T) {
	articles := ParseArticles([]byte(testFullArticle))
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	a := articles[0]

	if a.PMID != "12345678" {
		t.Errorf("pmid = %q", a.PMID)
	}
	if a.Title != "Efficacy of CRISPR-Cas9 in solid tumors" {
		t.Errorf("title = %q, inline markup should flatten", a.Title)
	}
	if a.Journal != "Nature Medicine" {
		t.Errorf("journal = %q", a.Journal)
	}
	if a.Year != 2023 {
		t.Errorf("year = %d", a.Year)
	}
	if a.Date != "2023-03-05" {
		t.Errorf("date = %q", a.Date)
	}
	if len(a.Authors) != 2 || a.Authors[0] != "Smith Jane A" || a.Authors[1] != "Doe" {
		t.Errorf("authors = %v (collective names have no LastName and are dropped)", a.Authors)
	}
	if a.Abstract != "Gene editing is promising. Tumors shrank." {
		t.Errorf("abstract = %q", a.Abstract)
	}
	if len(a.AbstractSections) != 2 || a.AbstractSections[0].Label != "BACKGROUND" {
		t.Errorf("sections = %+v", a.AbstractSections)
	}
	if a.DOI != "10.1038/nm.1234" {
		t.Errorf("doi = %q", a.DOI)
	}
	if a.PMCID != "PMC7654321" {
		t.Errorf("pmcid = %q", a.PMCID)
	}
}

func TestParseArticlesSkipsRecordsWithoutPMID(t *testing.T) {
	doc := `<PubmedArticleSet>
<PubmedArticle><MedlineCitation><Article><ArticleTitle>No id</ArticleTitle></Article></MedlineCitation></PubmedArticle>
<PubmedArticle><MedlineCitation><PMID>9</PMID></MedlineCitation></PubmedArticle>
</PubmedArticleSet>`
	articles := ParseArticles([]byte(doc))
	if len(articles) != 1 || articles[0].PMID != "9" {
		t.Fatalf("articles = %+v", articles)
	}
}

func TestParseArticlesMalformedIsEmpty(t *testing.T) {
	if got := ParseArticles([]byte("<PubmedArticleSet><Unclosed")); got != nil {
		t.Errorf("malformed input produced %+v", got)
	}
	if got := ParseArticles([]byte("   ")); got != nil {
		t.Errorf("blank input produced %+v", got)
	}
	if got := ParseArticles([]byte("<SomethingElse/>")); got != nil {
		t.Errorf("foreign root produced %+v", got)
	}
}

func TestParseArticlesStandaloneFragment(t *testing.T) {
	doc := `<PubmedArticle><MedlineCitation><PMID>77</PMID></MedlineCitation></PubmedArticle>`
	articles := ParseArticles([]byte(doc))
	if len(articles) != 1 || articles[0].PMID != "77" {
		t.Fatalf("articles = %+v", articles)
	}
}

func pubDateDoc(inner string) string {
	return `<PubmedArticle><MedlineCitation><PMID>1</PMID><Article><Journal><JournalIssue><PubDate>` +
		inner +
		`</PubDate></JournalIssue></Journal></Article></MedlineCitation></PubmedArticle>`
}

func TestParseArticlesDates(t *testing.T) {
	tests := []struct {
		name     string
		pubDate  string
		wantYear int
		wantDate string
	}{
		{"year only", "<Year>2021</Year>", 2021, "2021"},
		{"year month", "<Year>2021</Year><Month>Dec</Month>", 2021, "2021-12"},
		{"numeric month", "<Year>2021</Year><Month>7</Month>", 2021, "2021-07"},
		{"full date", "<Year>2021</Year><Month>Feb</Month><Day>3</Day>", 2021, "2021-02-03"},
		{"season", "<Year>2020</Year><Season>Winter</Season>", 2020, "2020-12"},
		{"season fall", "<Year>2020</Year><Season>Fall</Season>", 2020, "2020-09"},
		{"medline range", "<MedlineDate>1998 Dec-1999 Jan</MedlineDate>", 1998, "1998-12"},
		{"medline with day", "<MedlineDate>2000 Jun 15</MedlineDate>", 2000, "2000-06-15"},
		{"medline year only", "<MedlineDate>2002 Spring</MedlineDate>", 2002, "2002"},
		{"no date", "", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			articles := ParseArticles([]byte(pubDateDoc(tt.pubDate)))
			if len(articles) != 1 {
				t.Fatalf("got %d articles", len(articles))
			}
			if articles[0].Year != tt.wantYear {
				t.Errorf("year = %d, want %d", articles[0].Year, tt.wantYear)
			}
			if articles[0].Date != tt.wantDate {
				t.Errorf("date = %q, want %q", articles[0].Date, tt.wantDate)
			}
		})
	}
}

func TestParseMedlineDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1998 Dec-1999 Jan", "1998-12"},
		{"2000 Jun 15", "2000-06-15"},
		{"2002 Spring", "2002"},
		{"Winter 2003", "2003"},
		{"no year here", ""},
	}
	for _, tt := range tests {
		if got := parseMedlineDate(tt.in); got != tt.want {
			t.Errorf("parseMedlineDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMonthToNum(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jan", "01"}, {"dec", "12"}, {"SEP", "09"},
		{"3", "03"}, {"11", "11"},
		{"notamonth", ""},
	}
	for _, tt := range tests {
		if got := monthToNum(tt.in); got != tt.want {
			t.Errorf("monthToNum(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRoundTripThroughSplit(t *testing.T) {
	// Articles parsed from a split-and-reassembled document match those
	// parsed from the original.
	fragments, err := SplitArticleSet([]byte(testFullArticle))
	if err != nil {
		t.Fatalf("SplitArticleSet: %v", err)
	}
	byPMID := map[string][]byte{fragments[0].PMID: fragments[0].XML}
	doc := ReassembleArticleSet([]string{fragments[0].PMID}, byPMID)

	orig := ParseArticles([]byte(testFullArticle))
	roundTripped := ParseArticles(doc)
	if len(roundTripped) != 1 {
		t.Fatalf("got %d articles", len(roundTripped))
	}
	if orig[0].Title != roundTripped[0].Title || orig[0].Abstract != roundTripped[0].Abstract {
		t.Errorf("round trip changed content:\n%+v\n%+v", orig[0], roundTripped[0])
	}
}

func TestWriteReadArticlesJSONL(t *testing.T) {
	articles := []Article{
		{PMID: "1", Title: "One", Year: 2020, Authors: []string{"A B"}},
		{PMID: "2", Title: "Two <i>ht</i>ml"},
	}
	var sb strings.Builder
	if err := WriteArticles(&sb, articles); err != nil {
		t.Fatalf("WriteArticles: %v", err)
	}
	out := sb.String()
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("output = %q, want 2 lines", out)
	}
	if strings.Contains(out, `<`) {
		t.Error("HTML escaping should be off")
	}

	back, err := ReadArticles(strings.NewReader(out + "not json\n"))
	if err != nil {
		t.Fatalf("ReadArticles: %v", err)
	}
	if len(back) != 2 || back[0].PMID != "1" || back[1].Title != "Two <i>ht</i>ml" {
		t.Errorf("round trip = %+v", back)
	}
}
