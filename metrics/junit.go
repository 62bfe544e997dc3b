package metrics

import (
	"encoding/xml"
	"fmt"
	"os"
)

// junitReport is a minimal representation of a JUnit XML report, enough for
// CI systems to display check results.
type junitReport struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Time     float64         `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

// WriteJUnit writes res as a JUnit test suite named suite.
func WriteJUnit(path, suite string, res []CheckResult) error {
	rep := junitReport{Name: suite, Tests: len(res)}
	for _, r := range res {
		tc := junitTestCase{
			Name:      fmt.Sprintf("%s.%d", r.ECU, r.DID),
			Classname: suite + "." + string(r.Transport),
			Time:      r.Duration.Seconds(),
		}
		if !r.Passed {
			rep.Failures++
			f := &junitFailure{Message: r.Err}
			if f.Message == "" {
				f.Message = "value mismatch"
				f.Text = fmt.Sprintf("expected: %s\nactual:   %s", r.Expected, r.Actual)
			}
			tc.Failure = f
		}
		rep.Time += tc.Time
		rep.Cases = append(rep.Cases, tc)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	return f.Close()
}
