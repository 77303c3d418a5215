package connection

import "fmt"

// BuildSDP renders the SDP document for one mono RTP leg. The output is
// deterministic: identical inputs produce byte-identical text, each line
// CRLF-terminated including the last.
func BuildSDP(p TransportParams, streamLabel string) string {
	return fmt.Sprintf(
		"v=0\r\n"+
			"o=- 0 0 IN IP4 %s\r\n"+
			"s=%s\r\n"+
			"t=0 0\r\n"+
			"c=IN IP4 %s/%d\r\n"+
			"m=audio %d RTP/AVP %d\r\n"+
			"a=rtpmap:%d %s/%d/1\r\n",
		p.DestinationIP,
		streamLabel,
		p.DestinationIP, p.TTL,
		p.DestinationPort, p.PayloadType,
		p.PayloadType, p.EncodingName, p.SampleRate,
	)
}
