package docs

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTopics(t *testing.T) {
	// Every topic listed in readme.md loads, and every .md file is listed.
	file, err := os.Open("readme.md")
	if err != nil {
		t.Fatalf("failed to open readme.md: %v", err)
	}
	defer file.Close()

	var topicsInReadme []string
	scanner := bufio.NewScanner(file)
	topicRegex := regexp.MustCompile(`^\*\s+([^:]+):.*$`)
	for scanner.Scan() {
		if matches := topicRegex.FindStringSubmatch(scanner.Text()); len(matches) > 1 {
			topicsInReadme = append(topicsInReadme, strings.TrimSpace(matches[1]))
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("error scanning readme.md: %v", err)
	}

	for _, topic := range topicsInReadme {
		t.Run("load_"+topic, func(t *testing.T) {
			if _, err := GetTopic(topic); err != nil {
				t.Errorf("failed to get topic %q: %v", topic, err)
			}
		})
	}

	files, err := filepath.Glob("*.md")
	if err != nil {
		t.Fatalf("failed to glob *.md: %v", err)
	}
	for _, file := range files {
		if file == "readme.md" {
			continue
		}
		if topic := strings.TrimSuffix(file, ".md"); !slices.Contains(topicsInReadme, topic) {
			t.Errorf("topic %q is not listed in docs/readme.md", topic)
		}
	}

	all, err := GetAllTopics()
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(topicsInReadme)
	if diff := cmp.Diff(topicsInReadme, all); diff != "" {
		t.Errorf("GetAllTopics() mismatch (-readme +got):\n%s", diff)
	}
}

func TestGetTopics(t *testing.T) {
	if _, err := GetTopic("nope"); err == nil || !strings.Contains(err.Error(), `topic "nope" not found`) {
		t.Errorf("GetTopic(nope) error = %v", err)
	}
	got, err := GetTopics("*")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# Trading", "# Rates", "# Configuration"} {
		if !strings.Contains(got, want) {
			t.Errorf("GetTopics(*) does not contain %q", want)
		}
	}
}

func TestExamples(t *testing.T) {
	content := []byte("# T\n\n" +
		"```bash\n" +
		"vtrade buy -currency EUR -amount 92\n" +
		"echo done\n" +
		"```\n\n" +
		"```console\n" +
		"$ vtrade watch-rates -schedule \"@every 10m\"\n" +
		"```\n\n" +
		"```yaml\n" +
		"vtrade: ignored\n" +
		"```\n")

	got := examples("t", content)
	want := []Example{
		{Topic: "t", Line: 4, Args: []string{"buy", "-currency", "EUR", "-amount", "92"}},
		{Topic: "t", Line: 9, Args: []string{"watch-rates", "-schedule", "@every 10m"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("examples() mismatch (-want +got):\n%s", diff)
	}

	all, err := Examples()
	if err != nil {
		t.Fatal(err)
	}
	topics := map[string]bool{}
	for _, ex := range all {
		topics[ex.Topic] = true
	}
	for _, topic := range []string{"readme", "trading", "rates"} {
		if !topics[topic] {
			t.Errorf("Examples() has no example in %s", topic)
		}
	}
}
