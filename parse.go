package pubmed

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// flatText collects all character data inside an element, including text
// nested in inline markup (<i>, <sup>, ...), and trims the result.
type flatText string

func (t *flatText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var sb strings.Builder
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if cd, ok := tok.(xml.CharData); ok {
			sb.Write(cd)
		}
	}
	*t = flatText(strings.TrimSpace(sb.String()))
	return nil
}

func (t flatText) String() string { return string(t) }

// abstractTextXML is one AbstractText element: flattened text plus the
// optional Label attribute of structured abstracts.
type abstractTextXML struct {
	Label string
	Text  string
}

func (a *abstractTextXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = attr.Value
		}
	}
	var text flatText
	if err := text.UnmarshalXML(d, start); err != nil {
		return err
	}
	a.Text = string(text)
	return nil
}

type pubmedArticleXML struct {
	MedlineCitation struct {
		PMID    flatText `xml:"PMID"`
		Article struct {
			ArticleTitle flatText `xml:"ArticleTitle"`
			Journal      struct {
				Title        flatText `xml:"Title"`
				JournalIssue struct {
					PubDate struct {
						Year        flatText `xml:"Year"`
						Month       flatText `xml:"Month"`
						Day         flatText `xml:"Day"`
						Season      flatText `xml:"Season"`
						MedlineDate flatText `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Abstract struct {
				Sections []abstractTextXML `xml:"AbstractText"`
			} `xml:"Abstract"`
			AuthorList struct {
				Authors []struct {
					LastName flatText `xml:"LastName"`
					ForeName flatText `xml:"ForeName"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []struct {
			IDType string `xml:"IdType,attr"`
			Value  string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

type articleSetXML struct {
	XMLName  xml.Name
	Articles []pubmedArticleXML `xml:"PubmedArticle"`
}

// ParseArticles extracts structured Article records from a composite
// PubmedArticleSet document (or a standalone PubmedArticle). Malformed
// input yields no records rather than an error; upstream validation already
// treats unparseable cache entries as misses.
func ParseArticles(data []byte) []Article {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var set articleSetXML
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil
	}
	var raw []pubmedArticleXML
	switch set.XMLName.Local {
	case articleSetTag:
		raw = set.Articles
	case string(KindArticle):
		var single pubmedArticleXML
		if err := xml.Unmarshal(data, &single); err != nil {
			return nil
		}
		raw = []pubmedArticleXML{single}
	default:
		return nil
	}

	var articles []Article
	for _, ax := range raw {
		if a, ok := extractArticle(&ax); ok {
			articles = append(articles, a)
		}
	}
	return articles
}

func extractArticle(ax *pubmedArticleXML) (Article, bool) {
	pmid := ax.MedlineCitation.PMID.String()
	if pmid == "" {
		return Article{}, false
	}
	a := Article{PMID: pmid}

	art := &ax.MedlineCitation.Article
	a.Title = art.ArticleTitle.String()

	for _, au := range art.AuthorList.Authors {
		last, fore := au.LastName.String(), au.ForeName.String()
		if last == "" {
			continue
		}
		if fore != "" {
			a.Authors = append(a.Authors, last+" "+fore)
		} else {
			a.Authors = append(a.Authors, last)
		}
	}

	a.Journal = art.Journal.Title.String()

	pd := &art.Journal.JournalIssue.PubDate
	year := pd.Year.String()
	medline := pd.MedlineDate.String()
	if year == "" && medline != "" {
		year = yearRe.FindString(medline)
	}
	if year != "" {
		if y, err := strconv.Atoi(year); err == nil {
			a.Year = y
		}
	}
	a.Date = buildDate(year, pd.Month.String(), pd.Day.String(), pd.Season.String(), medline)

	var parts []string
	for _, sec := range art.Abstract.Sections {
		parts = append(parts, sec.Text)
		if sec.Label != "" {
			a.AbstractSections = append(a.AbstractSections, AbstractSection{Label: sec.Label, Text: sec.Text})
		}
	}
	a.Abstract = strings.Join(parts, " ")
	a.Abstract = strings.TrimSpace(a.Abstract)

	for _, id := range ax.PubmedData.ArticleIDs {
		value := strings.TrimSpace(id.Value)
		if value == "" {
			continue
		}
		switch id.IDType {
		case "doi":
			a.DOI = value
		case "pmc":
			a.PMCID = value
		}
	}
	return a, true
}

// Date extraction. PubMed dates arrive as structured Year/Month/Day, as a
// Season, or as a free-form MedlineDate ("1998 Dec-1999 Jan").

var (
	yearRe       = regexp.MustCompile(`\d{4}`)
	monthAfterRe = regexp.MustCompile(`^\s+([A-Za-z]{3})`)
	dayAfterRe   = regexp.MustCompile(`^\s*(\d{1,2})`)
)

var monthNums = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04",
	"may": "05", "jun": "06", "jul": "07", "aug": "08",
	"sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

var seasonMonths = map[string]string{
	"spring": "03", "summer": "06", "fall": "09", "autumn": "09", "winter": "12",
}

func monthToNum(month string) string {
	m := strings.ToLower(strings.TrimSpace(month))
	if num, ok := monthNums[m]; ok {
		return num
	}
	if _, err := strconv.Atoi(m); err == nil {
		if len(m) == 1 {
			return "0" + m
		}
		return m
	}
	return ""
}

// parseMedlineDate extracts the best ISO date from a free-form MedlineDate,
// using the first year and, when present, the month and day that follow it.
func parseMedlineDate(md string) string {
	loc := yearRe.FindStringIndex(md)
	if loc == nil {
		return ""
	}
	year := md[loc[0]:loc[1]]
	rest := md[loc[1]:]

	m := monthAfterRe.FindStringSubmatch(rest)
	if m == nil {
		return year
	}
	monthNum := monthToNum(m[1])
	if monthNum == "" {
		return year
	}
	dayRest := rest[len(m[0]):]
	if d := dayAfterRe.FindStringSubmatch(dayRest); d != nil {
		if day, err := strconv.Atoi(d[1]); err == nil {
			return fmt.Sprintf("%s-%s-%02d", year, monthNum, day)
		}
	}
	return year + "-" + monthNum
}

func buildDate(year, month, day, season, medline string) string {
	if year == "" {
		return ""
	}
	if medline != "" {
		return parseMedlineDate(medline)
	}
	if season != "" {
		if m, ok := seasonMonths[strings.ToLower(strings.TrimSpace(season))]; ok {
			return year + "-" + m
		}
		return year
	}
	if month != "" {
		m := monthToNum(month)
		if m == "" {
			m = month
		}
		if day != "" {
			if d, err := strconv.Atoi(day); err == nil {
				return fmt.Sprintf("%s-%s-%02d", year, m, d)
			}
			return year + "-" + m
		}
		return year + "-" + m
	}
	return year
}
