// Package figures maps scanned RFID tags to play requests, applying each
// figure's resume policy.
package figures
