package rfc9111

import (
	"net/http"
	"time"
)

// §     The calculation to determine if a response is fresh is:
// §
// §        response_is_fresh = (freshness_lifetime > current_age)
func isFresh(res *http.Response, requestTime, responseTime time.Time) bool {
	if ParseCacheControl(res.Header.Values("Cache-Control")).HasDirective("no-cache") {
		return false
	}
	return freshness_lifetime(res) > current_age(res, requestTime, responseTime)
}

// §  4.2.1.  Calculating Freshness Lifetime
func freshness_lifetime(res *http.Response) time.Duration {
	resCacheControl := ParseCacheControl(res.Header.Values("Cache-Control"))
	// §     *  If the cache is shared and the s-maxage response directive
	// §        (Section 5.2.2.10) is present, use its value, or
	if val, ok := resCacheControl.SMaxAge(); ok {
		return val
	}
	// §     *  If the max-age response directive (Section 5.2.2.1) is present,
	// §        use its value, or
	if val, ok := resCacheControl.MaxAge(); ok {
		return val
	}
	// §     *  If the Expires response header field (Section 5.3) is present, use
	// §        its value minus the value of the Date response header field
	if expires, err := HttpDate(res.Header.Get("Expires")); err == nil {
		if date, err := HttpDate(res.Header.Get("Date")); err == nil {
			return durationMax(0, expires.Sub(date))
		}
	} else if res.Header.Get("Expires") != "" {
		// §  A cache recipient MUST interpret invalid date formats, especially
		// §  the value "0", as representing a time in the past
		return 0
	}
	// §     *  Otherwise, no explicit expiration time is present in the response.
	// §        A heuristic freshness lifetime might be applicable; see
	// §        Section 4.2.2.
	return 0
}

// §  4.2.3.  Calculating Age
func age_value(res *http.Response) time.Duration {
	if secondsStr := res.Header.Get("Age"); secondsStr != "" {
		return deltaSeconds(secondsStr)
	}
	return 0
}

func date_value(res *http.Response, responseTime time.Time) time.Time {
	if date, err := HttpDate(res.Header.Get("Date")); err == nil {
		return date
	}
	return responseTime
}

// §       apparent_age = max(0, response_time - date_value);
// §
// §       response_delay = response_time - request_time;
// §       corrected_age_value = age_value + response_delay;
// §
// §       corrected_initial_age = max(apparent_age, corrected_age_value);
// §
// §       resident_time = now - response_time;
// §       current_age = corrected_initial_age + resident_time;
func current_age(res *http.Response, requestTime, responseTime time.Time) time.Duration {
	apparent_age := durationMax(0, responseTime.Sub(date_value(res, responseTime)))
	response_delay := durationMax(0, responseTime.Sub(requestTime))
	corrected_age_value := age_value(res) + response_delay
	corrected_initial_age := durationMax(apparent_age, corrected_age_value)
	resident_time := time.Since(responseTime)
	return corrected_initial_age + resident_time
}

func durationMax(d1, d2 time.Duration) time.Duration {
	if d1 > d2 {
		return d1
	}
	return d2
}
