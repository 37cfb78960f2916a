// Package capability declares the media capabilities the pipeline depends on
// and their concrete backends.
//
// Generation capabilities (speech, image, video, sound, lip sync) are served
// by HTTPVendor, a JSON gateway client that classifies failures as transient
// or permanent using the services error markers and throttles requests with a
// token bucket. Storage is served by LocalStorage or GCSStorage; both sniff
// the content type of what they store.
package capability
