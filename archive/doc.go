/*
Package archive stores captures of a streamed scene.

A capture is the complete frame sequence a newly connected client would
receive at the moment the capture was taken, together with the scene
metadata. Replaying the frames of a capture through a decoder rebuilds the
scene, which is what the dump command does.

Captures are stored as gzipped protobuf messages in simpleblob storage:

	message Capture {
	    uint32 format_version = 1;
	    Meta meta = 2;
	    repeated bytes frames = 3;
	    repeated MetadataEntry metadata = 4;
	}

	message Meta {
	    string scene = 1;
	    string instance_id = 2;
	    string hostname = 3;
	    string generation_id = 4;
	    fixed64 timestamp_nano = 5;
	    uint32 primitives = 6;
	    uint64 seq = 7;
	}

	message MetadataEntry {
	    string name = 1;
	    string key = 2;
	    string value = 3;
	}

The messages are small and flat, so they are encoded by hand with the csproto
wire helpers instead of generated code.
*/
package archive
